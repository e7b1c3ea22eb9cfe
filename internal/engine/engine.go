// Package engine runs the detection and deterrence loop. Every tick the
// worker enumerates active cameras, fans one subtask out per camera and
// walks each through the response protocol: snapshot, detection, deterrent
// playback and the follow-up effectiveness measurement. Cameras of the same
// integration run serially so provider rate limits hold; different
// integrations interleave freely.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/detect"
	"github.com/tphakala/pestguard-go/internal/effectiveness"
	"github.com/tphakala/pestguard-go/internal/logging"
	"github.com/tphakala/pestguard-go/internal/mqtt"
	"github.com/tphakala/pestguard-go/internal/notification"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
	"github.com/tphakala/pestguard-go/internal/pipeline"
	"github.com/tphakala/pestguard-go/internal/settings"
	"github.com/tphakala/pestguard-go/internal/suncalc"
)

// stopWait bounds how long Stop blocks for in-flight subtasks.
const stopWait = 5 * time.Second

// successStreakThreshold is the run length that triggers a notification.
const successStreakThreshold = 3

var logger *slog.Logger

func init() {
	logger = logging.ForService("engine")
}

// cameraSource enumerates cameras and owns the provider connections.
type cameraSource interface {
	ActiveCameras() ([]datastore.Camera, error)
	Cleanup()
}

// snapshotSource grabs rate-limited snapshots.
type snapshotSource interface {
	Fetch(ctx context.Context, cam *datastore.Camera) ([]byte, error)
}

// detectionPipeline turns a snapshot into a persisted detection.
type detectionPipeline interface {
	Process(ctx context.Context, cam *datastore.Camera, snapshot []byte) (*datastore.Detection, error)
	PersistFollowUp(cam *datastore.Camera, snapshot []byte) (string, error)
}

// videoCapturer records an evidence clip for a detection.
type videoCapturer interface {
	Capture(ctx context.Context, cam *datastore.Camera, detectionID uint) (string, error)
}

// soundPlayer serves the deterrent sound library and playback paths.
type soundPlayer interface {
	AvailableSounds(pest string) ([]string, error)
	PlayOnCamera(ctx context.Context, cam *datastore.Camera, pest, name string) error
	PlayLocal(ctx context.Context, pest, name string) error
	MaxPlayback() time.Duration
}

// soundSelector picks the deterrent sound to play.
type soundSelector interface {
	Select(pest string, candidates []string) (sound, strategy string)
}

// outcomeRecorder persists measured deterrence outcomes.
type outcomeRecorder interface {
	RecordEffectiveness(ctx context.Context, detectionID uint, pest, sound, method string,
		foesBefore, foesAfter []datastore.Foe, followUpPath string, wait time.Duration) (*datastore.SoundEffectiveness, error)
}

// Deps bundles the collaborators the worker orchestrates.
type Deps struct {
	DS        datastore.Interface
	Cameras   cameraSource
	Snapshots snapshotSource
	Pipeline  detectionPipeline
	Detector  detect.Detector
	Video     videoCapturer
	Sounds    soundPlayer
	Selector  soundSelector
	Outcomes  outcomeRecorder
	Settings  *settings.Store
	Quiet     *suncalc.QuietHours
	Publisher *mqtt.Publisher
	Notifier  *notification.Notifier
	Metrics   *metrics.EngineMetrics
}

// Worker is the periodic detection scheduler.
type Worker struct {
	deps Deps

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// per-integration semaphores survive across ticks so a slow subtask
	// cannot overlap the next tick's work on the same integration
	semMu sync.Mutex
	sems  map[uint]*semaphore.Weighted

	streakMu sync.Mutex
	streaks  map[string]int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorker builds the worker. Start must be called to begin ticking.
func NewWorker(deps Deps) *Worker {
	return &Worker{
		deps:    deps,
		sems:    make(map[uint]*semaphore.Weighted),
		streaks: make(map[string]int),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start launches the tick loop. Calling Start on a running worker is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	go w.run(ctx)
	logger.Info("Detection worker started")
}

// Stop cancels the loop, waits up to five seconds for in-flight subtasks and
// releases the camera connections. Safe to call on a stopped worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
	case <-time.After(stopWait):
		logger.Warn("Detection worker did not stop in time, abandoning subtasks")
	}
	w.deps.Cameras.Cleanup()
	logger.Info("Detection worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		start := w.now()
		w.tick(ctx)
		if w.deps.Metrics != nil {
			w.deps.Metrics.IncrementTicks()
			w.deps.Metrics.ObserveTickDuration(w.now().Sub(start).Seconds())
		}

		// Interval changes apply at the next sleep.
		interval := time.Duration(w.deps.Settings.DetectionInterval()) * time.Second
		if err := w.sleep(ctx, interval); err != nil {
			return
		}
	}
}

// tick runs one pass over all active cameras and joins every subtask before
// returning.
func (w *Worker) tick(ctx context.Context) {
	cams, err := w.deps.Cameras.ActiveCameras()
	if err != nil {
		logger.Error("Failed to enumerate active cameras", "error", err)
		return
	}
	if w.deps.Metrics != nil {
		w.deps.Metrics.SetActiveCameras(len(cams))
	}

	var wg sync.WaitGroup
	for i := range cams {
		cam := cams[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Camera subtask panicked",
						"camera", cam.Name, "panic", r, "stack", string(debug.Stack()))
					w.recordSubtask("panic", 0)
				}
			}()

			sem := w.integrationSem(cam.IntegrationID)
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			start := w.now()
			status := w.processCamera(ctx, &cam)
			w.recordSubtask(status, w.now().Sub(start).Seconds())
		}()
	}
	wg.Wait()
}

func (w *Worker) integrationSem(integrationID uint) *semaphore.Weighted {
	w.semMu.Lock()
	defer w.semMu.Unlock()
	sem, ok := w.sems[integrationID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		w.sems[integrationID] = sem
	}
	return sem
}

func (w *Worker) recordSubtask(status string, seconds float64) {
	if w.deps.Metrics != nil {
		w.deps.Metrics.RecordSubtask(status, seconds)
	}
}

// processCamera walks one camera through the response protocol and returns
// the subtask status for metrics.
func (w *Worker) processCamera(ctx context.Context, cam *datastore.Camera) string {
	snapshot, err := w.deps.Snapshots.Fetch(ctx, cam)
	if err != nil {
		logger.Warn("Snapshot failed", "camera", cam.Name, "error", err)
		return "snapshot_failed"
	}

	detection, err := w.deps.Pipeline.Process(ctx, cam, snapshot)
	if err != nil {
		logger.Warn("Detection pipeline failed", "camera", cam.Name, "error", err)
		return "pipeline_failed"
	}
	if detection == nil {
		return "no_change"
	}

	// Fresh read so the pre-playback foe set matches what was persisted.
	foesBefore, err := w.deps.DS.GetDetectionFoes(detection.ID)
	if err != nil {
		logger.Error("Failed to load detection foes", "detection", detection.ID, "error", err)
		return "datastore_failed"
	}
	w.publishDetection(ctx, cam, detection, foesBefore)

	kind := pipeline.PrimaryFoeKind(foesBefore)
	if kind == "" || kind == detect.KindUnknown {
		return "no_foe"
	}
	logger.Info("Foe detected", "camera", cam.Name, "kind", kind, "detection", detection.ID)

	skipReason := ""
	switch {
	case !w.deps.Settings.DeterrentsEnabled():
		skipReason = "disabled"
	case w.deps.Quiet != nil && w.deps.Quiet.Active(w.now()):
		skipReason = "quiet_hours"
	}

	// Evidence clip records in parallel with the deterrence steps. A skipped
	// deterrence skips the clip too.
	videoCh := make(chan string, 1)
	var playedSound string
	var outcomeRecorded bool
	if skipReason != "" {
		w.skipDeterrence(skipReason)
		videoCh <- ""
	} else {
		go func() {
			path, err := w.deps.Video.Capture(ctx, cam, detection.ID)
			if err != nil {
				logger.Warn("Video capture failed", "camera", cam.Name, "error", err)
			}
			videoCh <- path
		}()
		playedSound, outcomeRecorded = w.deter(ctx, cam, detection, kind, foesBefore)
	}

	videoPath := <-videoCh

	fields := make(map[string]any)
	if videoPath != "" {
		fields["video_path"] = videoPath
	}
	if playedSound != "" {
		fields["played_sounds"] = []string{playedSound}
		// The deterred status implies a recorded effectiveness row; a lost
		// follow-up keeps the detection at its pipeline status.
		if outcomeRecorded {
			fields["status"] = "deterred"
		}
	}
	if len(fields) > 0 {
		if err := w.deps.DS.UpdateDetection(detection.ID, fields); err != nil {
			logger.Error("Failed to update detection", "detection", detection.ID, "error", err)
		}
	}
	return "processed"
}

func (w *Worker) skipDeterrence(reason string) {
	logger.Debug("Deterrence skipped", "reason", reason)
	if w.deps.Metrics != nil {
		w.deps.Metrics.RecordDeterrenceSkipped(reason)
	}
}

// deter plays a deterrent sound and measures its effect. Returns the sound
// that was played (empty when playback never happened) and whether an
// effectiveness outcome was recorded for it.
func (w *Worker) deter(ctx context.Context, cam *datastore.Camera, detection *datastore.Detection, kind string, foesBefore []datastore.Foe) (string, bool) {
	candidates, err := w.deps.Sounds.AvailableSounds(kind)
	if err != nil {
		logger.Warn("Sound inventory failed", "pest", kind, "error", err)
		return "", false
	}
	if len(candidates) == 0 {
		w.skipDeterrence("no_sounds")
		return "", false
	}

	sound, strategy := w.deps.Selector.Select(kind, candidates)

	method := ""
	if err := w.deps.Sounds.PlayOnCamera(ctx, cam, kind, sound); err == nil {
		method = "camera"
	} else {
		logger.Debug("Camera playback failed, falling back to local audio",
			"camera", cam.Name, "sound", sound, "error", err)
		if err := w.deps.Sounds.PlayLocal(ctx, kind, sound); err == nil {
			method = "local"
		} else {
			logger.Warn("All playback paths failed", "camera", cam.Name, "sound", sound, "error", err)
		}
	}

	action := &datastore.DeterrentAction{
		DetectionID: detection.ID,
		ActionKind:  "sound_deterrent",
		TriggeredAt: w.now(),
		Success:     method != "",
		Details:     fmt.Sprintf("sound=%s strategy=%s method=%s", sound, strategy, method),
	}
	if err := w.deps.DS.SaveDeterrentAction(action); err != nil {
		logger.Error("Failed to save deterrent action", "detection", detection.ID, "error", err)
	}
	if method == "" {
		return "", false
	}

	return sound, w.measureEffect(ctx, cam, detection, kind, sound, method, foesBefore)
}

// measureEffect waits out the fixed observation window, takes a follow-up
// snapshot and records the before/after comparison. The window is always
// the full playback cap so scores stay comparable across sounds. Reports
// whether an effectiveness row was recorded.
func (w *Worker) measureEffect(ctx context.Context, cam *datastore.Camera, detection *datastore.Detection, kind, sound, method string, foesBefore []datastore.Foe) bool {
	wait := w.deps.Sounds.MaxPlayback()
	if err := w.sleep(ctx, wait); err != nil {
		return false
	}

	followUp, err := w.deps.Snapshots.Fetch(ctx, cam)
	if err != nil {
		logger.Warn("Follow-up snapshot failed, outcome not recorded",
			"camera", cam.Name, "error", err)
		return false
	}

	followUpPath, err := w.deps.Pipeline.PersistFollowUp(cam, followUp)
	if err != nil {
		logger.Warn("Failed to persist follow-up snapshot", "camera", cam.Name, "error", err)
	}

	result, err := w.deps.Detector.Detect(ctx, followUp)
	if err != nil {
		logger.Warn("Follow-up detection failed, outcome not recorded",
			"camera", cam.Name, "error", err)
		return false
	}
	detect.Normalize(&result, w.deps.Settings.ConfidenceThreshold())

	foesAfter := make([]datastore.Foe, 0, len(result.Foes))
	for _, foe := range result.Foes {
		foesAfter = append(foesAfter, datastore.Foe{
			Kind:       detect.NormalizeKind(foe.Kind),
			Confidence: foe.Confidence,
		})
	}

	record, err := w.deps.Outcomes.RecordEffectiveness(ctx, detection.ID, kind, sound, method,
		foesBefore, foesAfter, followUpPath, wait)
	if err != nil {
		logger.Error("Failed to record effectiveness", "detection", detection.ID, "error", err)
		return false
	}
	logger.Info("Deterrence outcome recorded",
		"camera", cam.Name, "pest", kind, "sound", sound,
		"result", record.Result, "score", record.Score)

	w.publishEffectiveness(ctx, record)
	w.trackStreak(kind, sound, record.Result)
	return true
}

// trackStreak counts consecutive successes per (pest, sound) and announces
// runs hitting the threshold.
func (w *Worker) trackStreak(pest, sound, result string) {
	w.streakMu.Lock()
	defer w.streakMu.Unlock()

	key := pest + "|" + sound
	if result != effectiveness.ResultSuccess {
		w.streaks[key] = 0
		return
	}
	w.streaks[key]++
	if w.streaks[key] == successStreakThreshold {
		w.deps.Notifier.SuccessStreak(pest, sound, successStreakThreshold)
	}
}

func (w *Worker) publishDetection(ctx context.Context, cam *datastore.Camera, detection *datastore.Detection, foes []datastore.Foe) {
	if w.deps.Publisher == nil {
		return
	}
	if err := w.deps.Publisher.PublishDetection(ctx, cam.Name, detection, foes); err != nil {
		logger.Debug("Detection event not published", "error", err)
	}
}

func (w *Worker) publishEffectiveness(ctx context.Context, record *datastore.SoundEffectiveness) {
	if w.deps.Publisher == nil {
		return
	}
	if err := w.deps.Publisher.PublishEffectiveness(ctx, record); err != nil {
		logger.Debug("Effectiveness event not published", "error", err)
	}
}
