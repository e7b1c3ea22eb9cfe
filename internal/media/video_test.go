package media

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
)

func TestClipFilename(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	name := clipFilename("Garden Cam", ts, 0)
	assert.Regexp(t, regexp.MustCompile(`^garden-cam_20260314_150926_[0-9a-f]{8}\.mp4$`), name)

	withDetection := clipFilename("Garden Cam", ts, 42)
	assert.Regexp(t, regexp.MustCompile(`^garden-cam_20260314_150926_det42_[0-9a-f]{8}\.mp4$`), withDetection)
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "garden-cam", slugify("Garden Cam"))
	assert.Equal(t, "pond-3", slugify("Pond #3!"))
	assert.Equal(t, "cam", slugify("  cam  "))
}

func TestCaptureSkipsWithoutStreamURL(t *testing.T) {
	t.Parallel()

	c := NewVideoCapturer(&conf.Settings{})
	path, err := c.Capture(context.Background(), &datastore.Camera{Name: "garden"}, 0)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestCaptureSkipsWithoutFfmpeg(t *testing.T) {
	t.Parallel()

	cfg := &conf.Settings{}
	cfg.Media.VideosDir = t.TempDir()
	c := NewVideoCapturer(cfg)
	c.ffmpegPath = ""

	path, err := c.Capture(context.Background(), &datastore.Camera{Name: "garden", RTSPURL: "rtsps://host:7441/x"}, 0)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestCaptureSkipsUnderDiskPressure(t *testing.T) {
	t.Parallel()

	cfg := &conf.Settings{}
	cfg.Media.VideosDir = t.TempDir()
	cfg.Media.MaxUsage = "80%"
	c := NewVideoCapturer(cfg)
	c.ffmpegPath = "ffmpeg"
	c.usedPct = func(string) (float64, error) { return 95, nil }

	path, err := c.Capture(context.Background(), &datastore.Camera{Name: "garden", RTSPURL: "rtsps://host:7441/x"}, 0)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestCaptureArgsCopyStreamOverTCP(t *testing.T) {
	t.Parallel()

	cfg := &conf.Settings{}
	cfg.Media.VideoDuration = 30
	c := NewVideoCapturer(cfg)

	args := c.captureArgs("rtsps://host:7441/x", "/tmp/out.mp4.tmp")
	assert.Contains(t, args, "-rtsp_transport")
	assert.Contains(t, args, "tcp")
	assert.Contains(t, args, "copy")
	assert.Contains(t, args, "30")
	assert.Equal(t, "/tmp/out.mp4.tmp", args[len(args)-1])
}

func TestBoundedBufferCapsRetainedOutput(t *testing.T) {
	t.Parallel()

	b := &boundedBuffer{cap: 8}
	n, err := b.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 16, n, "writer never blocks the producer")
	assert.Equal(t, "01234567", b.String())
}
