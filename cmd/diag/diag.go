// Package diag implements the diag subcommand: a one-shot connectivity
// report over the configured camera integrations.
package diag

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/pestguard-go/internal/camera"
	"github.com/tphakala/pestguard-go/internal/camera/providers"
	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/diagnostics"
)

// probeTimeout bounds each probe call against a provider.
const probeTimeout = 30 * time.Second

// Command creates the diag command.
func Command(cfg *conf.Settings) *cobra.Command {
	var integration string

	cmd := &cobra.Command{
		Use:   "diag",
		Short: "Probe camera integrations and report connectivity problems",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, cfg, integration)
		},
	}
	cmd.Flags().StringVar(&integration, "integration", "", "Limit the probe to one integration by name")
	return cmd
}

func run(cmd *cobra.Command, cfg *conf.Settings, only string) error {
	factories := providers.Factories()
	tracker := diagnostics.NewTracker()
	probed := 0

	for i := range cfg.Cameras.Integrations {
		ic := cfg.Cameras.Integrations[i]
		if only != "" && ic.Name != only {
			continue
		}
		probed++

		if !ic.Enabled {
			cmd.Printf("%s: disabled, skipping\n", ic.Name)
			continue
		}
		factory, ok := factories[ic.Kind]
		if !ok {
			cmd.Printf("%s: unknown provider kind %q\n", ic.Name, ic.Kind)
			continue
		}

		probeIntegration(cmd, factory(ic.Host, ic.APIKey), &ic, tracker)
	}

	if probed == 0 {
		if only != "" {
			return fmt.Errorf("no integration named %q in the configuration", only)
		}
		cmd.Println("No integrations configured")
	}
	return nil
}

func probeIntegration(cmd *cobra.Command, handler camera.Handler, ic *conf.IntegrationConfig, tracker *diagnostics.Tracker) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cmd.Printf("%s (%s at %s)\n", ic.Name, ic.Kind, ic.Host)

	if err := handler.TestConnection(ctx); err != nil {
		tracker.Record(ic.Name, camera.ErrorKind(err), err.Error())
		cmd.Printf("  connection: FAILED: %v\n", err)
		printSuggestions(cmd, tracker, ic.Name)
		return
	}
	cmd.Println("  connection: ok")

	devices, err := handler.ListDevices(ctx)
	if err != nil {
		tracker.Record(ic.Name, camera.ErrorKind(err), err.Error())
		cmd.Printf("  devices: FAILED: %v\n", err)
		printSuggestions(cmd, tracker, ic.Name)
		return
	}
	cmd.Printf("  devices: %d found\n", len(devices))

	for i := range devices {
		info := devices[i]
		cmd.Printf("    %s (%s) online=%t speaker=%t rtsp=%t\n",
			info.Name, info.Model, info.Online, info.HasSpeaker, info.RTSPURL != "")
		if !info.Online {
			continue
		}

		device, err := handler.Device(info.ProviderID)
		if err != nil {
			cmd.Printf("      snapshot: FAILED: %v\n", err)
			continue
		}
		snapshot, err := device.Snapshot(ctx)
		if err != nil {
			tracker.Record(info.Name, camera.ErrorKind(err), err.Error())
			cmd.Printf("      snapshot: FAILED: %v\n", err)
			printSuggestions(cmd, tracker, info.Name)
			continue
		}
		cmd.Printf("      snapshot: ok (%d bytes)\n", len(snapshot))

		if info.HasSpeaker {
			probeTalkback(cmd, device, tracker, info.Name)
		}
	}
}

func probeTalkback(cmd *cobra.Command, device camera.Device, tracker *diagnostics.Tracker, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	tester, ok := device.(camera.TalkbackTester)
	if !ok {
		cmd.Println("      talkback: not supported by this provider")
		return
	}
	if err := tester.TestTalkback(ctx); err != nil {
		tracker.Record(name, camera.ErrorKind(err), err.Error())
		cmd.Printf("      talkback: FAILED: %v\n", err)
		printSuggestions(cmd, tracker, name)
		return
	}
	cmd.Println("      talkback: ok")
}

func printSuggestions(cmd *cobra.Command, tracker *diagnostics.Tracker, name string) {
	for _, fix := range tracker.SuggestFixes(name) {
		cmd.Printf("  suggestion: %s\n", fix)
	}
}
