package media

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
)

// captureGrace is added on top of the configured clip duration before the
// ffmpeg subprocess is killed.
const captureGrace = 10 * time.Second

// stderrCap bounds how much ffmpeg stderr is kept for error reports.
const stderrCap = 4 * 1024

// VideoCapturer records short RTSP clips with ffmpeg. Cameras without a
// stream URL, and hosts without ffmpeg, are skipped rather than failed.
type VideoCapturer struct {
	videosDir   string
	ffmpegPath  string
	duration    time.Duration
	maxUsagePct float64
	usedPct     func(path string) (float64, error)
	metrics     *metrics.MediaMetrics
	missingOnce sync.Once
}

// NewVideoCapturer builds a capturer from the media settings.
func NewVideoCapturer(cfg *conf.Settings) *VideoCapturer {
	duration := time.Duration(cfg.Media.VideoDuration) * time.Second
	if duration <= 0 {
		duration = 15 * time.Second
	}
	ffmpegPath := cfg.Media.FfmpegPath
	if ffmpegPath == "" && conf.IsFfmpegAvailable() {
		ffmpegPath = conf.GetFfmpegBinaryName()
	}
	maxUsagePct := 0.0
	if pct, err := conf.ParsePercentage(cfg.Media.MaxUsage); err == nil {
		maxUsagePct = pct
	}
	return &VideoCapturer{
		videosDir:   cfg.Media.VideosDir,
		ffmpegPath:  ffmpegPath,
		duration:    duration,
		maxUsagePct: maxUsagePct,
		usedPct:     diskUsedPercent,
	}
}

// SetMetrics wires the media metrics collector.
func (c *VideoCapturer) SetMetrics(m *metrics.MediaMetrics) {
	c.metrics = m
}

func (c *VideoCapturer) record(status string, seconds float64) {
	if c.metrics != nil {
		c.metrics.RecordCapture(status, seconds)
	}
}

// Capture records one clip from the camera's RTSP stream and returns the
// stored path. Returns empty without error when the camera offers no stream
// or ffmpeg is unavailable.
func (c *VideoCapturer) Capture(ctx context.Context, cam *datastore.Camera, detectionID uint) (string, error) {
	if cam.RTSPURL == "" {
		logger.Debug("Camera has no RTSP stream, skipping video capture", "camera", cam.Name)
		c.record("skipped", 0)
		return "", nil
	}
	if c.ffmpegPath == "" {
		c.missingOnce.Do(func() {
			logger.Warn("ffmpeg not found, video capture disabled for this run")
		})
		c.record("skipped", 0)
		return "", nil
	}

	if c.maxUsagePct > 0 {
		if pct, err := c.usedPct(c.videosDir); err == nil && pct >= c.maxUsagePct {
			logger.Warn("Media filesystem over usage budget, skipping video capture",
				"camera", cam.Name, "used_pct", pct, "max_pct", c.maxUsagePct)
			c.record("skipped", 0)
			return "", nil
		}
	}

	if err := os.MkdirAll(c.videosDir, 0o755); err != nil {
		c.record("error", 0)
		return "", errors.New(err).
			Component("media").
			Category(errors.CategoryFileIO).
			Context("operation", "create_videos_dir").
			Build()
	}

	finalPath := filepath.Join(c.videosDir, clipFilename(cam.Name, time.Now(), detectionID))
	tmpPath := finalPath + ".tmp"

	runCtx, cancel := context.WithTimeout(ctx, c.duration+captureGrace)
	defer cancel()

	stderr := &boundedBuffer{cap: stderrCap}
	//nolint:gosec // the stream URL comes from the provider inventory, not user input
	cmd := exec.CommandContext(runCtx, c.ffmpegPath, c.captureArgs(cam.RTSPURL, tmpPath)...)
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Seconds()

	if err != nil {
		_ = os.Remove(tmpPath)
		status := "error"
		if runCtx.Err() != nil {
			status = "timeout"
		}
		c.record(status, elapsed)
		return "", errors.New(err).
			Component("media").
			Category(errors.CategoryVideoCapture).
			CameraContext(cam.ID, cam.Name).
			Context("stderr", stderr.String()).
			Timing("video_capture", time.Since(start)).
			Build()
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		c.record("error", elapsed)
		return "", errors.New(err).
			Component("media").
			Category(errors.CategoryFileIO).
			FileContext(finalPath, 0).
			Build()
	}

	c.record("success", elapsed)
	logger.Debug("Video clip captured", "camera", cam.Name, "path", finalPath, "seconds", elapsed)
	return finalPath, nil
}

// captureArgs builds the ffmpeg invocation: copy the stream without
// re-encoding, forced over TCP so lossy links do not corrupt the clip.
func (c *VideoCapturer) captureArgs(rtspURL, outPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-t", strconv.Itoa(int(c.duration.Seconds())),
		"-c", "copy",
		"-movflags", "+faststart",
		"-f", "mp4",
		"-y",
		outPath,
	}
}

// clipFilename renders <camera>_<timestamp>[_det<id>]_<hex8>.mp4 with the
// camera name slugged down to filesystem-safe characters.
func clipFilename(cameraName string, ts time.Time, detectionID uint) string {
	var b strings.Builder
	b.WriteString(slugify(cameraName))
	b.WriteByte('_')
	b.WriteString(ts.Format("20060102_150405"))
	if detectionID > 0 {
		b.WriteString("_det")
		b.WriteString(strconv.FormatUint(uint64(detectionID), 10))
	}
	b.WriteByte('_')
	b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	b.WriteString(".mp4")
	return b.String()
}

// slugify lowercases a name and squashes anything outside [a-z0-9] to a dash.
func slugify(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// boundedBuffer keeps only the first cap bytes written to it.
type boundedBuffer struct {
	buf []byte
	cap int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if remaining := b.cap - len(b.buf); remaining > 0 {
		if len(p) > remaining {
			b.buf = append(b.buf, p[:remaining]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	return string(b.buf)
}
