package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/detect"
	"github.com/tphakala/pestguard-go/internal/settings"
	"github.com/tphakala/pestguard-go/internal/suncalc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSettingsDB backs a settings store without a database.
type fakeSettingsDB struct {
	mu     sync.Mutex
	values map[string]string
}

func (f *fakeSettingsDB) GetSetting(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", gorm.ErrRecordNotFound
}

func (f *fakeSettingsDB) SetSetting(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	return nil
}

type fakeCameras struct {
	cams    []datastore.Camera
	cleaned atomic.Bool
}

func (f *fakeCameras) ActiveCameras() ([]datastore.Camera, error) { return f.cams, nil }
func (f *fakeCameras) Cleanup()                                   { f.cleaned.Store(true) }

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	payload []byte
	err     error
	okCalls int // with err set, this many leading calls still succeed
}

func (f *fakeFetcher) Fetch(_ context.Context, _ *datastore.Camera) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil && f.calls > f.okCalls {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePipeline struct {
	detection  *datastore.Detection
	err        error
	followPath string
}

func (f *fakePipeline) Process(_ context.Context, _ *datastore.Camera, _ []byte) (*datastore.Detection, error) {
	return f.detection, f.err
}

func (f *fakePipeline) PersistFollowUp(_ *datastore.Camera, _ []byte) (string, error) {
	return f.followPath, nil
}

type fakeVideo struct {
	path   string
	called atomic.Bool
}

func (f *fakeVideo) Capture(_ context.Context, _ *datastore.Camera, _ uint) (string, error) {
	f.called.Store(true)
	return f.path, nil
}

type fakeSounds struct {
	mu          sync.Mutex
	sounds      []string
	cameraErr   error
	localErr    error
	cameraPlays []string
	localPlays  []string
	maxPlayback time.Duration
}

func (f *fakeSounds) AvailableSounds(string) ([]string, error) { return f.sounds, nil }

func (f *fakeSounds) PlayOnCamera(_ context.Context, _ *datastore.Camera, _, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cameraErr != nil {
		return f.cameraErr
	}
	f.cameraPlays = append(f.cameraPlays, name)
	return nil
}

func (f *fakeSounds) PlayLocal(_ context.Context, _, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.localErr != nil {
		return f.localErr
	}
	f.localPlays = append(f.localPlays, name)
	return nil
}

func (f *fakeSounds) MaxPlayback() time.Duration { return f.maxPlayback }

type fakeSelector struct {
	sound string
}

func (f *fakeSelector) Select(_ string, _ []string) (string, string) { return f.sound, "exploit" }

type effectivenessCall struct {
	detectionID  uint
	pest         string
	sound        string
	method       string
	foesBefore   []datastore.Foe
	foesAfter    []datastore.Foe
	followUpPath string
	wait         time.Duration
}

type fakeOutcomes struct {
	mu     sync.Mutex
	calls  []effectivenessCall
	result string
}

func (f *fakeOutcomes) RecordEffectiveness(_ context.Context, detectionID uint, pest, sound, method string,
	foesBefore, foesAfter []datastore.Foe, followUpPath string, wait time.Duration) (*datastore.SoundEffectiveness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, effectivenessCall{
		detectionID: detectionID, pest: pest, sound: sound, method: method,
		foesBefore: foesBefore, foesAfter: foesAfter, followUpPath: followUpPath, wait: wait,
	})
	result := f.result
	if result == "" {
		result = "SUCCESS"
	}
	return &datastore.SoundEffectiveness{
		DetectionID: detectionID, PestKind: pest, SoundFile: sound,
		Result: result, Score: 1,
	}, nil
}

func (f *fakeOutcomes) recorded() []effectivenessCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// testDeps builds a worker wired with fakes around one detected crow.
func testDeps(t *testing.T) (Deps, *datastore.MockStore, *fakeFetcher, *fakeSounds, *fakeOutcomes, *fakeVideo) {
	t.Helper()

	ds := &datastore.MockStore{}
	fetcher := &fakeFetcher{payload: []byte("jpeg")}
	sounds := &fakeSounds{sounds: []string{"hawk_cry.wav"}, maxPlayback: 8 * time.Second}
	outcomes := &fakeOutcomes{}
	video := &fakeVideo{path: "videos/pond_20260314_120000_det42_ab12cd34.mp4"}

	deps := Deps{
		DS:        ds,
		Cameras:   &fakeCameras{},
		Snapshots: fetcher,
		Pipeline: &fakePipeline{
			detection:  &datastore.Detection{ID: 42, Status: "processed"},
			followPath: "snapshots/pond_followup.jpg",
		},
		Detector: &detect.StaticDetector{},
		Video:    video,
		Sounds:   sounds,
		Selector: &fakeSelector{sound: "hawk_cry.wav"},
		Outcomes: outcomes,
		Settings: settings.New(&fakeSettingsDB{}),
	}
	return deps, ds, fetcher, sounds, outcomes, video
}

func instantSleep(w *Worker) *[]time.Duration {
	var slept []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &slept
}

func TestProcessCameraFullProtocol(t *testing.T) {
	deps, ds, fetcher, sounds, outcomes, video := testDeps(t)

	foes := []datastore.Foe{{Kind: "CROWS", Confidence: 0.9}}
	ds.On("GetDetectionFoes", uint(42)).Return(foes, nil)
	ds.On("SaveDeterrentAction", mock.AnythingOfType("*datastore.DeterrentAction")).Return(nil)
	ds.On("UpdateDetection", uint(42), mock.MatchedBy(func(fields map[string]any) bool {
		return fields["status"] == "deterred" && fields["video_path"] != ""
	})).Return(nil)

	w := NewWorker(deps)
	slept := instantSleep(w)

	cam := datastore.Camera{ID: 1, Name: "Pond Camera", HasSpeaker: true}
	status := w.processCamera(context.Background(), &cam)

	assert.Equal(t, "processed", status)
	assert.Equal(t, []string{"hawk_cry.wav"}, sounds.cameraPlays)
	assert.True(t, video.called.Load())
	assert.Equal(t, 2, fetcher.callCount(), "initial snapshot plus follow-up")
	require.Equal(t, []time.Duration{8 * time.Second}, *slept,
		"observation window is the fixed playback cap")

	calls := outcomes.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, uint(42), calls[0].detectionID)
	assert.Equal(t, "CROWS", calls[0].pest)
	assert.Equal(t, "camera", calls[0].method)
	assert.Equal(t, foes, calls[0].foesBefore)
	assert.Empty(t, calls[0].foesAfter, "static detector saw nothing on the follow-up")
	assert.Equal(t, "snapshots/pond_followup.jpg", calls[0].followUpPath)

	ds.AssertExpectations(t)
}

func TestProcessCameraNoChange(t *testing.T) {
	deps, ds, fetcher, _, outcomes, video := testDeps(t)
	deps.Pipeline = &fakePipeline{detection: nil}

	w := NewWorker(deps)
	status := w.processCamera(context.Background(), &datastore.Camera{ID: 1, Name: "Pond Camera"})

	assert.Equal(t, "no_change", status)
	assert.Equal(t, 1, fetcher.callCount())
	assert.False(t, video.called.Load())
	assert.Empty(t, outcomes.recorded())
	ds.AssertNotCalled(t, "UpdateDetection", mock.Anything, mock.Anything)
}

func TestProcessCameraUnknownFoeSkipsDeterrence(t *testing.T) {
	deps, ds, _, sounds, _, _ := testDeps(t)
	ds.On("GetDetectionFoes", uint(42)).Return([]datastore.Foe{
		{Kind: "UNKNOWN", Confidence: 0.9},
	}, nil)

	w := NewWorker(deps)
	status := w.processCamera(context.Background(), &datastore.Camera{ID: 1, Name: "Pond Camera"})

	assert.Equal(t, "no_foe", status)
	assert.Empty(t, sounds.cameraPlays)
}

func TestProcessCameraDeterrentsDisabled(t *testing.T) {
	deps, ds, _, sounds, outcomes, video := testDeps(t)
	db := &fakeSettingsDB{values: map[string]string{settings.KeyDeterrentsEnabled: "false"}}
	deps.Settings = settings.New(db)

	ds.On("GetDetectionFoes", uint(42)).Return([]datastore.Foe{
		{Kind: "CROWS", Confidence: 0.9},
	}, nil)

	w := NewWorker(deps)
	status := w.processCamera(context.Background(), &datastore.Camera{ID: 1, Name: "Pond Camera"})

	assert.Equal(t, "processed", status)
	assert.Empty(t, sounds.cameraPlays, "detection persists but no sound plays")
	assert.False(t, video.called.Load(), "skipped deterrence skips the evidence clip")
	assert.Empty(t, outcomes.recorded())
	ds.AssertNotCalled(t, "UpdateDetection", mock.Anything, mock.Anything)
}

func TestProcessCameraQuietHours(t *testing.T) {
	deps, ds, _, sounds, _, video := testDeps(t)
	deps.Quiet = suncalc.NewQuietHours(conf.QuietHoursSettings{
		Enabled: true,
		Mode:    "fixed",
		Start:   "00:00",
		End:     "23:59",
	})

	ds.On("GetDetectionFoes", uint(42)).Return([]datastore.Foe{
		{Kind: "CROWS", Confidence: 0.9},
	}, nil)

	w := NewWorker(deps)
	w.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }

	w.processCamera(context.Background(), &datastore.Camera{ID: 1, Name: "Pond Camera"})
	assert.Empty(t, sounds.cameraPlays)
	assert.False(t, video.called.Load())
	ds.AssertNotCalled(t, "UpdateDetection", mock.Anything, mock.Anything)
}

func TestFollowUpFailureKeepsPipelineStatus(t *testing.T) {
	deps, ds, fetcher, sounds, outcomes, _ := testDeps(t)
	fetcher.err = assert.AnError
	fetcher.okCalls = 1

	ds.On("GetDetectionFoes", uint(42)).Return([]datastore.Foe{
		{Kind: "CROWS", Confidence: 0.9},
	}, nil)
	ds.On("SaveDeterrentAction", mock.AnythingOfType("*datastore.DeterrentAction")).Return(nil)
	ds.On("UpdateDetection", uint(42), mock.MatchedBy(func(fields map[string]any) bool {
		_, hasStatus := fields["status"]
		return !hasStatus && assert.ObjectsAreEqual([]string{"hawk_cry.wav"}, fields["played_sounds"])
	})).Return(nil)

	w := NewWorker(deps)
	instantSleep(w)

	status := w.processCamera(context.Background(), &datastore.Camera{ID: 1, Name: "Pond Camera", HasSpeaker: true})

	assert.Equal(t, "processed", status)
	assert.Equal(t, []string{"hawk_cry.wav"}, sounds.cameraPlays, "sound played before the follow-up was lost")
	assert.Empty(t, outcomes.recorded(), "no outcome row without a follow-up snapshot")
	ds.AssertExpectations(t)
}

func TestDeterFallsBackToLocalPlayback(t *testing.T) {
	deps, ds, _, sounds, outcomes, _ := testDeps(t)
	sounds.cameraErr = assert.AnError

	ds.On("GetDetectionFoes", uint(42)).Return([]datastore.Foe{
		{Kind: "CROWS", Confidence: 0.9},
	}, nil)
	ds.On("SaveDeterrentAction", mock.AnythingOfType("*datastore.DeterrentAction")).Return(nil)
	ds.On("UpdateDetection", uint(42), mock.Anything).Return(nil)

	w := NewWorker(deps)
	instantSleep(w)

	w.processCamera(context.Background(), &datastore.Camera{ID: 1, Name: "Pond Camera"})

	assert.Equal(t, []string{"hawk_cry.wav"}, sounds.localPlays)
	calls := outcomes.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "local", calls[0].method)
}

func TestDeterAllPlaybackFailed(t *testing.T) {
	deps, ds, _, sounds, outcomes, _ := testDeps(t)
	sounds.cameraErr = assert.AnError
	sounds.localErr = assert.AnError

	var savedAction *datastore.DeterrentAction
	ds.On("GetDetectionFoes", uint(42)).Return([]datastore.Foe{
		{Kind: "CROWS", Confidence: 0.9},
	}, nil)
	ds.On("SaveDeterrentAction", mock.AnythingOfType("*datastore.DeterrentAction")).
		Run(func(args mock.Arguments) {
			savedAction, _ = args.Get(0).(*datastore.DeterrentAction)
		}).Return(nil)
	ds.On("UpdateDetection", uint(42), mock.MatchedBy(func(fields map[string]any) bool {
		_, hasStatus := fields["status"]
		return !hasStatus
	})).Return(nil)

	w := NewWorker(deps)
	w.processCamera(context.Background(), &datastore.Camera{ID: 1, Name: "Pond Camera"})

	require.NotNil(t, savedAction)
	assert.False(t, savedAction.Success, "failed playback still records the attempt")
	assert.Empty(t, outcomes.recorded(), "no follow-up without playback")
}

func TestDeterNoSoundsForPest(t *testing.T) {
	deps, ds, _, sounds, outcomes, _ := testDeps(t)
	sounds.sounds = nil

	ds.On("GetDetectionFoes", uint(42)).Return([]datastore.Foe{
		{Kind: "HERONS", Confidence: 0.9},
	}, nil)
	ds.On("UpdateDetection", uint(42), mock.Anything).Return(nil)

	w := NewWorker(deps)
	w.processCamera(context.Background(), &datastore.Camera{ID: 1, Name: "Pond Camera"})
	assert.Empty(t, outcomes.recorded())
	ds.AssertNotCalled(t, "SaveDeterrentAction", mock.Anything)
}

func TestStartStopIdempotent(t *testing.T) {
	deps, _, _, _, _, _ := testDeps(t)
	cameras := &fakeCameras{}
	deps.Cameras = cameras

	w := NewWorker(deps)
	w.Start()
	w.Start()

	w.Stop()
	w.Stop()
	assert.True(t, cameras.cleaned.Load(), "stop releases camera connections")
}

func TestIntegrationSemaphoreSerializesSameIntegration(t *testing.T) {
	deps, _, _, _, _, _ := testDeps(t)
	cameras := &fakeCameras{cams: []datastore.Camera{
		{ID: 1, IntegrationID: 7, Name: "Pond Camera"},
		{ID: 2, IntegrationID: 7, Name: "Shed Camera"},
	}}
	deps.Cameras = cameras
	deps.Pipeline = &fakePipeline{detection: nil}

	var active, maxActive atomic.Int32
	deps.Snapshots = snapshotFunc(func(ctx context.Context, cam *datastore.Camera) ([]byte, error) {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return []byte("jpeg"), nil
	})

	w := NewWorker(deps)
	w.tick(context.Background())

	assert.Equal(t, int32(1), maxActive.Load(),
		"cameras of one integration never run concurrently")
}

type snapshotFunc func(ctx context.Context, cam *datastore.Camera) ([]byte, error)

func (f snapshotFunc) Fetch(ctx context.Context, cam *datastore.Camera) ([]byte, error) {
	return f(ctx, cam)
}

func TestTrackStreakNotifiesOnThirdSuccess(t *testing.T) {
	deps, _, _, _, _, _ := testDeps(t)
	w := NewWorker(deps)

	w.trackStreak("CROWS", "hawk_cry.wav", "SUCCESS")
	w.trackStreak("CROWS", "hawk_cry.wav", "SUCCESS")
	assert.Equal(t, 2, w.streaks["CROWS|hawk_cry.wav"])

	w.trackStreak("CROWS", "hawk_cry.wav", "FAILURE")
	assert.Equal(t, 0, w.streaks["CROWS|hawk_cry.wav"], "failure resets the streak")
}
