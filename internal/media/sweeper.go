package media

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
	"github.com/tphakala/pestguard-go/internal/settings"
)

// pressureCutoff is the retention override applied when the media filesystem
// is over its usage budget: everything with media on disk qualifies.
const pressureCutoff = time.Minute

// Sweeper removes detection media that aged out of retention and guards the
// media filesystem against filling up.
type Sweeper struct {
	ds       datastore.Interface
	store    *settings.Store
	cfg      *conf.Settings
	metrics  *metrics.MediaMetrics
	usedPct  func(path string) (float64, error)
	interval time.Duration
}

// NewSweeper builds a retention sweeper over the datastore.
func NewSweeper(ds datastore.Interface, store *settings.Store, cfg *conf.Settings) *Sweeper {
	return &Sweeper{
		ds:       ds,
		store:    store,
		cfg:      cfg,
		usedPct:  diskUsedPercent,
		interval: time.Hour,
	}
}

// SetMetrics wires the media metrics collector.
func (s *Sweeper) SetMetrics(m *metrics.MediaMetrics) {
	s.metrics = m
}

// Run sweeps immediately and then on every interval until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil {
			logger.Error("Retention sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep deletes media files older than the retention window and clears their
// database references. When the filesystem is over its usage budget the age
// filter is dropped so the sweep reclaims space immediately.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.store.SnapshotRetentionDays())

	if pct, err := s.usedPct(s.cfg.Media.SnapshotsDir); err == nil {
		if s.metrics != nil {
			s.metrics.SetDiskUsage(pct)
		}
		if maxPct, perr := conf.ParsePercentage(s.cfg.Media.MaxUsage); perr == nil && pct >= maxPct {
			logger.Warn("Media filesystem over usage budget, sweeping all stored media",
				"used_percent", pct, "max_percent", maxPct)
			cutoff = time.Now().Add(-pressureCutoff)
		}
	} else {
		logger.Debug("Disk usage probe failed", "path", s.cfg.Media.SnapshotsDir, "error", err)
	}

	items, err := s.ds.GetMediaQualifyingForRemoval(cutoff)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	cleared := make([]uint, 0, len(items))
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		item := &items[i]
		if s.removeFile(item.ImagePath, "snapshot") && s.removeFile(item.VideoPath, "video") {
			cleared = append(cleared, item.ID)
		}
	}

	if len(cleared) > 0 {
		if err := s.ds.ClearMediaPaths(cleared); err != nil {
			return err
		}
		logger.Info("Retention sweep removed media", "detections", len(cleared), "cutoff", cutoff)
	}
	return nil
}

// removeFile deletes one media file, counting it in metrics. Missing files
// and empty paths count as removed so their rows still get cleared.
func (s *Sweeper) removeFile(path, kind string) bool {
	if path == "" {
		return true
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.RecordSweeperDelete(kind)
		}
		return true
	case os.IsNotExist(err):
		return true
	default:
		logger.Error("Failed to remove media file", "path", path, "error",
			errors.New(err).Component("media").Category(errors.CategoryDiskCleanup).Build())
		return false
	}
}

func diskUsedPercent(path string) (float64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}
