// Package sounds implements the sounds subcommand: an inventory and
// validation report over the deterrent sound library.
package sounds

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/deterrent"
	"github.com/tphakala/pestguard-go/internal/errors"
)

// Command creates the sounds command.
func Command(cfg *conf.Settings) *cobra.Command {
	var pest string

	cmd := &cobra.Command{
		Use:   "sounds",
		Short: "List and validate the deterrent sound library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, cfg, pest)
		},
	}
	cmd.Flags().StringVar(&pest, "pest", "", "Limit the report to one pest kind")
	return cmd
}

func run(cmd *cobra.Command, cfg *conf.Settings, pest string) error {
	soundsDir := cfg.Deterrents.SoundsDir
	player := deterrent.NewPlayer(cfg, nil)

	kinds, err := pestDirs(soundsDir, pest)
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		cmd.Printf("No pest sound directories found under %s\n", soundsDir)
		return nil
	}

	total := 0
	for _, kind := range kinds {
		valid, err := player.AvailableSounds(kind)
		if err != nil {
			return err
		}
		all, err := soundFiles(filepath.Join(soundsDir, strings.ToLower(kind)))
		if err != nil {
			return err
		}

		cmd.Printf("%s: %d playable sound(s)\n", strings.ToUpper(kind), len(valid))
		validSet := make(map[string]bool, len(valid))
		for _, name := range valid {
			validSet[name] = true
			cmd.Printf("  ok      %s\n", name)
		}
		for _, name := range all {
			if !validSet[name] {
				cmd.Printf("  invalid %s\n", name)
			}
		}
		total += len(valid)
	}
	cmd.Printf("Total: %d playable sound(s) across %d pest kind(s)\n", total, len(kinds))
	return nil
}

// pestDirs lists the per-pest subdirectories, or just the requested one.
func pestDirs(soundsDir, pest string) ([]string, error) {
	if pest != "" {
		return []string{strings.ToLower(pest)}, nil
	}

	entries, err := os.ReadDir(soundsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(err).
			Component("sounds").
			Category(errors.CategoryFileIO).
			Context("sounds_dir", soundsDir).
			Build()
	}

	var kinds []string
	for _, entry := range entries {
		if entry.IsDir() {
			kinds = append(kinds, entry.Name())
		}
	}
	sort.Strings(kinds)
	return kinds, nil
}

// soundFiles lists every audio-looking file in a pest directory.
func soundFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".wav", ".mp3":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
