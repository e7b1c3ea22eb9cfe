package deterrent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
)

// playbackHardCap bounds every playback regardless of configuration.
const playbackHardCap = 10 * time.Second

// cameraPlayer is the registry-side playback operation. Satisfied by
// *camera.Registry.
type cameraPlayer interface {
	PlaySoundOnCamera(ctx context.Context, cam *datastore.Camera, path string, maxDuration time.Duration) error
}

// Player owns the sound library and the playback paths: through the camera
// speaker when available, through local audio otherwise.
type Player struct {
	soundsDir   string
	maxPlayback time.Duration
	cameras     cameraPlayer
	metrics     *metrics.DeterrentMetrics
}

// NewPlayer builds a player over the configured sound library.
func NewPlayer(cfg *conf.Settings, cameras cameraPlayer) *Player {
	maxPlayback := time.Duration(cfg.Deterrents.MaxPlaybackSeconds) * time.Second
	if maxPlayback <= 0 || maxPlayback > playbackHardCap {
		maxPlayback = playbackHardCap
	}
	return &Player{
		soundsDir:   cfg.Deterrents.SoundsDir,
		maxPlayback: maxPlayback,
		cameras:     cameras,
	}
}

// SetMetrics wires the deterrent metrics collector.
func (p *Player) SetMetrics(m *metrics.DeterrentMetrics) {
	p.metrics = m
}

// MaxPlayback returns the effective playback cap, also used as the
// observation window before the follow-up snapshot.
func (p *Player) MaxPlayback() time.Duration {
	return p.maxPlayback
}

// SoundPath resolves a library sound name to its on-disk path.
func (p *Player) SoundPath(pest, name string) string {
	return filepath.Join(p.soundsDir, strings.ToLower(pest), name)
}

// AvailableSounds lists the playable sound files for a pest kind, base
// names only. Partial downloads are excluded and corrupt WAV files skipped
// with a warning.
func (p *Player) AvailableSounds(pest string) ([]string, error) {
	dir := filepath.Join(p.soundsDir, strings.ToLower(pest))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("deterrent").
			Category(errors.CategorySoundLibrary).
			Context("pest", pest).
			FileContext(dir, 0).
			Build()
	}

	var sounds []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.Contains(name, ".crdownload") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".mp3":
			sounds = append(sounds, name)
		case ".wav":
			if p.validWav(filepath.Join(dir, name)) {
				sounds = append(sounds, name)
			}
		}
	}

	if p.metrics != nil {
		p.metrics.SetSoundInventory(pest, len(sounds))
	}
	return sounds, nil
}

// validWav decodes the WAV header to weed out corrupt library files.
func (p *Player) validWav(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("Cannot open sound file, skipping", "path", path, "error", err)
		return false
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		logger.Warn("Corrupt WAV file in sound library, skipping", "path", path)
		return false
	}
	return true
}

// PlayOnCamera plays a library sound through the camera speaker.
func (p *Player) PlayOnCamera(ctx context.Context, cam *datastore.Camera, pest, name string) error {
	err := p.cameras.PlaySoundOnCamera(ctx, cam, p.SoundPath(pest, name), p.maxPlayback)
	p.recordPlay("camera", err)
	return err
}

// PlayLocal plays a library sound through the host's audio stack, capped at
// the playback limit where the platform allows it.
func (p *Player) PlayLocal(ctx context.Context, pest, name string) error {
	path := p.SoundPath(pest, name)
	seconds := int(p.maxPlayback.Seconds())

	cmdName, args, capped := localPlayCommand(path, seconds)
	if cmdName == "" {
		err := errors.Newf("no local audio player available").
			Component("deterrent").
			Category(errors.CategoryDeterrent).
			Build()
		p.recordPlay("local", err)
		return err
	}
	if !capped {
		logger.Warn("Playing without a duration cap, timeout command unavailable", "path", path)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.maxPlayback+2*time.Second)
	defer cancel()

	//nolint:gosec // command names come from the fixed player table
	cmd := exec.CommandContext(runCtx, cmdName, args...)
	err := cmd.Run()
	if err != nil {
		err = errors.New(err).
			Component("deterrent").
			Category(errors.CategoryDeterrent).
			FileContext(path, 0).
			Context("player", cmdName).
			Build()
	}
	p.recordPlay("local", err)
	return err
}

func (p *Player) recordPlay(method string, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordPlay(method, status)
}

// localPlayCommand picks the platform playback command. Returns the command,
// its arguments and whether the duration cap applies.
func localPlayCommand(path string, seconds int) (name string, args []string, capped bool) {
	switch runtime.GOOS {
	case "darwin":
		return "afplay", []string{"-t", fmt.Sprintf("%d", seconds), path}, true
	case "windows":
		return "cmd", []string{"/c", "start", "", path}, false
	default:
		player := firstAvailable("paplay", "aplay", "mpg123")
		if player == "" {
			return "", nil, false
		}
		if conf.IsTimeoutAvailable() {
			return "timeout", []string{fmt.Sprintf("%ds", seconds), player, path}, true
		}
		return player, []string{path}, false
	}
}

func firstAvailable(names ...string) string {
	for _, name := range names {
		if _, err := exec.LookPath(name); err == nil {
			return name
		}
	}
	return ""
}
