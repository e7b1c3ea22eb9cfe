// Package watch implements the watch subcommand: the long-running
// detection and deterrence engine with its supporting services.
package watch

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/pestguard-go/internal/camera"
	"github.com/tphakala/pestguard-go/internal/camera/providers"
	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/detect"
	"github.com/tphakala/pestguard-go/internal/deterrent"
	"github.com/tphakala/pestguard-go/internal/diagnostics"
	"github.com/tphakala/pestguard-go/internal/effectiveness"
	"github.com/tphakala/pestguard-go/internal/engine"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/grouping"
	"github.com/tphakala/pestguard-go/internal/httpserver"
	"github.com/tphakala/pestguard-go/internal/logging"
	"github.com/tphakala/pestguard-go/internal/media"
	"github.com/tphakala/pestguard-go/internal/mqtt"
	"github.com/tphakala/pestguard-go/internal/notification"
	"github.com/tphakala/pestguard-go/internal/observability"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
	"github.com/tphakala/pestguard-go/internal/pipeline"
	"github.com/tphakala/pestguard-go/internal/ratelimit"
	"github.com/tphakala/pestguard-go/internal/settings"
	"github.com/tphakala/pestguard-go/internal/suncalc"
	"github.com/tphakala/pestguard-go/internal/telemetry"
)

// shutdownGrace bounds the ops server drain and telemetry flush.
const shutdownGrace = 5 * time.Second

// healthPollInterval drives the periodic diagnostics rollup, which fires
// recovery transitions and refreshes the health gauges.
const healthPollInterval = time.Minute

var logger *slog.Logger

func init() {
	logger = logging.ForService("watch")
}

// Command creates the watch command.
func Command(cfg *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the detection and deterrence engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}
}

func run(parent context.Context, cfg *conf.Settings) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(cfg); err != nil {
		logger.Warn("Telemetry initialization failed, continuing without it", "error", err)
	}

	obs, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	ds := datastore.New(cfg)
	if ds == nil {
		return errors.Newf("no database backend enabled, enable sqlite or mysql").
			Component("watch").
			Category(errors.CategoryConfiguration).
			Build()
	}
	datastore.SetMetrics(obs.Datastore)
	if err := ds.Open(); err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Warn("Failed to close datastore", "error", err)
		}
	}()

	store := settings.New(ds)
	tracker := diagnostics.NewTracker()

	notifier, err := notification.New(&cfg.Notification)
	if err != nil {
		return err
	}
	tracker.OnTransition(notifier.CameraTransition)

	registry := camera.NewRegistry(ds, tracker, providers.Factories())
	registry.SetMetrics(obs.Camera)
	if err := registry.SyncIntegrations(ctx, cfg.Cameras.Integrations); err != nil {
		return err
	}
	defer registry.Cleanup()

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	limiter.SetMetrics(obs.RateLimit)

	detector, err := detect.New(cfg)
	if err != nil {
		return err
	}

	fetcher := media.NewSnapshotFetcher(registry, limiter, store)
	pipe := pipeline.New(ds, detector, store, cfg)

	video := media.NewVideoCapturer(cfg)
	video.SetMetrics(obs.Media)

	outcomes := effectiveness.New(ds)
	outcomes.SetMetrics(obs.Effectiveness)
	outcomes.SetTimezone(store)

	selector := deterrent.NewSelector(outcomes, store)
	selector.SetMetrics(obs.Deterrent)

	player := deterrent.NewPlayer(cfg, registry)
	player.SetMetrics(obs.Deterrent)

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		client := mqtt.NewClient(mqtt.DefaultConfig(&cfg.MQTT, cfg.Main.Name), obs.MQTT)
		if err := client.Connect(ctx); err != nil {
			logger.Warn("MQTT broker unreachable, events will not be published until reconnect",
				"broker", cfg.MQTT.Broker, "error", err)
		}
		defer client.Disconnect()
		publisher = mqtt.NewPublisher(client, cfg.MQTT.TopicPrefix)
	}

	go pollHealth(ctx, tracker, obs.Camera)

	sweeper := media.NewSweeper(ds, store, cfg)
	sweeper.SetMetrics(obs.Media)
	go sweeper.Run(ctx)

	if cfg.Ops.Enabled {
		srv := httpserver.New(cfg, tracker, grouping.New(ds, store), outcomes, obs)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Ops server shutdown failed", "error", err)
			}
		}()
	}

	worker := engine.NewWorker(engine.Deps{
		DS:        ds,
		Cameras:   registry,
		Snapshots: fetcher,
		Pipeline:  pipe,
		Detector:  detector,
		Video:     video,
		Sounds:    player,
		Selector:  selector,
		Outcomes:  outcomes,
		Settings:  store,
		Quiet:     suncalc.NewQuietHours(cfg.Deterrents.QuietHours),
		Publisher: publisher,
		Notifier:  notifier,
		Metrics:   obs.Engine,
	})

	worker.Start()
	logger.Info("PestGuard engine running", "version", cfg.Version)

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	worker.Stop()
	telemetry.Flush(shutdownGrace)
	return nil
}

// pollHealth rolls up camera health once a minute. The rollup fires recovery
// transitions on the tracker and keeps the health gauges current.
func pollHealth(ctx context.Context, tracker *diagnostics.Tracker, m *metrics.CameraMetrics) {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy, unhealthy := 0, 0
			for _, status := range tracker.HealthStatus() {
				if status.Healthy {
					healthy++
				} else {
					unhealthy++
				}
			}
			if m != nil {
				m.UpdateHealthCounts(healthy, unhealthy)
			}
		}
	}
}
