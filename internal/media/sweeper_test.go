package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/settings"
)

func sweeperWith(t *testing.T, ds datastore.Interface, usedPct float64) *Sweeper {
	t.Helper()

	cfg := &conf.Settings{}
	cfg.Media.SnapshotsDir = t.TempDir()
	cfg.Media.MaxUsage = "90%"

	s := NewSweeper(ds, settings.New(&fakeSettings{values: map[string]string{}}), cfg)
	s.usedPct = func(string) (float64, error) { return usedPct, nil }
	return s
}

func writeTempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("media"), 0o644))
	return path
}

func TestSweepRemovesAgedMediaAndClearsRows(t *testing.T) {
	t.Parallel()

	imagePath := writeTempFile(t, "snap.jpg")
	videoPath := writeTempFile(t, "clip.mp4")

	ds := &datastore.MockStore{}
	ds.On("GetMediaQualifyingForRemoval", mock.AnythingOfType("time.Time")).Return([]datastore.MediaForRemoval{
		{ID: 1, ImagePath: imagePath, VideoPath: videoPath},
	}, nil)
	ds.On("ClearMediaPaths", []uint{1}).Return(nil)

	s := sweeperWith(t, ds, 40)
	require.NoError(t, s.Sweep(context.Background()))

	assert.NoFileExists(t, imagePath)
	assert.NoFileExists(t, videoPath)
	ds.AssertCalled(t, "ClearMediaPaths", []uint{1})
}

func TestSweepTreatsMissingFilesAsRemoved(t *testing.T) {
	t.Parallel()

	ds := &datastore.MockStore{}
	ds.On("GetMediaQualifyingForRemoval", mock.AnythingOfType("time.Time")).Return([]datastore.MediaForRemoval{
		{ID: 2, ImagePath: "/nonexistent/snap.jpg", VideoPath: ""},
	}, nil)
	ds.On("ClearMediaPaths", []uint{2}).Return(nil)

	s := sweeperWith(t, ds, 40)
	require.NoError(t, s.Sweep(context.Background()))
	ds.AssertCalled(t, "ClearMediaPaths", []uint{2})
}

func TestSweepUsesRetentionCutoff(t *testing.T) {
	t.Parallel()

	var cutoff time.Time
	ds := &datastore.MockStore{}
	ds.On("GetMediaQualifyingForRemoval", mock.AnythingOfType("time.Time")).Run(func(args mock.Arguments) {
		cutoff = args.Get(0).(time.Time)
	}).Return(nil, nil)

	s := sweeperWith(t, ds, 40)
	require.NoError(t, s.Sweep(context.Background()))

	// Default retention is seven days.
	expected := time.Now().AddDate(0, 0, -7)
	assert.WithinDuration(t, expected, cutoff, time.Minute)
}

func TestSweepDropsAgeFilterUnderDiskPressure(t *testing.T) {
	t.Parallel()

	var cutoff time.Time
	ds := &datastore.MockStore{}
	ds.On("GetMediaQualifyingForRemoval", mock.AnythingOfType("time.Time")).Run(func(args mock.Arguments) {
		cutoff = args.Get(0).(time.Time)
	}).Return(nil, nil)

	s := sweeperWith(t, ds, 95)
	require.NoError(t, s.Sweep(context.Background()))

	assert.WithinDuration(t, time.Now(), cutoff, time.Minute, "pressure sweep ignores the retention window")
}

func TestSweepNoQualifyingMedia(t *testing.T) {
	t.Parallel()

	ds := &datastore.MockStore{}
	ds.On("GetMediaQualifyingForRemoval", mock.AnythingOfType("time.Time")).Return(nil, nil)

	s := sweeperWith(t, ds, 40)
	require.NoError(t, s.Sweep(context.Background()))
	ds.AssertNotCalled(t, "ClearMediaPaths", mock.Anything)
}
