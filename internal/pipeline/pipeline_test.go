package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/detect"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/imagehash"
	"github.com/tphakala/pestguard-go/internal/settings"
)

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) GetSetting(key string) (string, error) {
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", gorm.ErrRecordNotFound
}

func (f *fakeSettings) SetSetting(key, value string) error {
	f.values[key] = value
	return nil
}

// testSnapshot renders a gradient with a bright square at the offset, PNG
// encoded. Different offsets give visually different scenes.
func testSnapshot(t *testing.T, offset int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			v := uint8(x * 4)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	for y := offset; y < offset+20 && y < 64; y++ {
		for x := offset; x < offset+20 && x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pipelineWith(t *testing.T, ds datastore.Interface, detector detect.Detector, values map[string]string) *Pipeline {
	t.Helper()
	if values == nil {
		values = map[string]string{}
	}
	cfg := &conf.Settings{}
	cfg.Media.SnapshotsDir = t.TempDir()
	return New(ds, detector, settings.New(&fakeSettings{values: values}), cfg)
}

func TestProcessRecordsDetection(t *testing.T) {
	t.Parallel()

	ds := &datastore.MockStore{}
	ds.On("UpdateCameraImageHash", uint(1), mock.AnythingOfType("string")).Return(nil)
	ds.On("SaveDetection", mock.AnythingOfType("*datastore.Detection"), mock.AnythingOfType("[]datastore.Foe")).
		Run(func(args mock.Arguments) {
			args.Get(0).(*datastore.Detection).ID = 42
		}).Return(nil)

	detector := &detect.StaticDetector{}
	detector.SetResult(detect.Result{
		FoesDetected: true,
		Foes: []detect.Foe{
			{Kind: "rat", Confidence: 0.9, BBox: detect.BBox{X: 0.5, Y: 0.5, Width: 0.25, Height: 0.25}},
		},
	})

	p := pipelineWith(t, ds, detector, nil)
	cam := datastore.Camera{ID: 1, Name: "garden"}

	detection, err := p.Process(context.Background(), &cam, testSnapshot(t, 4))
	require.NoError(t, err)
	require.NotNil(t, detection)

	assert.Equal(t, uint(42), detection.ID)
	assert.Equal(t, "processed", detection.Status)
	assert.Equal(t, detect.KindRats, detection.PrimaryFoe)
	assert.True(t, detection.FoesDetected)
	assert.FileExists(t, detection.ImagePath)
	assert.Len(t, detection.ImageHash, 16)
	assert.NotEmpty(t, cam.LastImageHash, "camera hash updated in place")

	ds.AssertCalled(t, "SaveDetection", mock.Anything, mock.MatchedBy(func(foes []datastore.Foe) bool {
		// Bounding box scaled from relative coordinates to the 64px frame.
		return len(foes) == 1 && foes[0].Kind == detect.KindRats && foes[0].BoxX == 32 && foes[0].BoxWidth == 16
	}))
}

func TestProcessChangeGateSkipsUnchangedScene(t *testing.T) {
	t.Parallel()

	snapshot := testSnapshot(t, 4)
	hash, err := imagehash.HashBytes(snapshot)
	require.NoError(t, err)

	detector := &detect.StaticDetector{}
	p := pipelineWith(t, &datastore.MockStore{}, detector, nil)
	cam := datastore.Camera{ID: 1, Name: "garden", LastImageHash: hash}

	detection, err := p.Process(context.Background(), &cam, snapshot)
	require.NoError(t, err)
	assert.Nil(t, detection)
	assert.Zero(t, detector.Calls(), "unchanged scene never reaches the detector")
}

func TestProcessDetectorFailurePersistsFailedRecord(t *testing.T) {
	t.Parallel()

	ds := &datastore.MockStore{}
	ds.On("UpdateCameraImageHash", uint(1), mock.AnythingOfType("string")).Return(nil)
	ds.On("SaveDetection", mock.AnythingOfType("*datastore.Detection"), mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(0).(*datastore.Detection).ID = 7
		}).Return(nil)

	detector := &detect.StaticDetector{}
	detector.SetError(errors.Newf("backend unavailable").Component("detect").Category(errors.CategoryDetector).Build())

	p := pipelineWith(t, ds, detector, nil)
	cam := datastore.Camera{ID: 1, Name: "garden"}

	detection, err := p.Process(context.Background(), &cam, testSnapshot(t, 4))
	require.NoError(t, err)
	require.NotNil(t, detection)
	assert.Equal(t, "failed", detection.Status)
	assert.Contains(t, detection.ErrorDetail, "backend unavailable")
	assert.Empty(t, detection.PrimaryFoe, "failed detections carry no primary foe")
}

func TestProcessLevelZeroDiscardsUnknownOnlyScenes(t *testing.T) {
	t.Parallel()

	detector := &detect.StaticDetector{}
	detector.SetResult(detect.Result{
		FoesDetected: true,
		Foes:         []detect.Foe{{Kind: "squirrel", Confidence: 0.9}},
	})

	ds := &datastore.MockStore{}
	ds.On("UpdateCameraImageHash", uint(1), mock.AnythingOfType("string")).Return(nil)

	p := pipelineWith(t, ds, detector, map[string]string{"snapshot_capture_level": "0"})
	cam := datastore.Camera{ID: 1, Name: "garden"}

	detection, err := p.Process(context.Background(), &cam, testSnapshot(t, 4))
	require.NoError(t, err)
	assert.Nil(t, detection)
	ds.AssertNotCalled(t, "SaveDetection", mock.Anything, mock.Anything)
}

func TestProcessLevelTwoPersistsEmptyScenes(t *testing.T) {
	t.Parallel()

	detector := &detect.StaticDetector{}
	detector.SetResult(detect.Result{})

	ds := &datastore.MockStore{}
	ds.On("UpdateCameraImageHash", uint(1), mock.AnythingOfType("string")).Return(nil)
	ds.On("SaveDetection", mock.AnythingOfType("*datastore.Detection"), mock.Anything).Return(nil)

	p := pipelineWith(t, ds, detector, map[string]string{"snapshot_capture_level": "2"})
	cam := datastore.Camera{ID: 1, Name: "garden"}

	detection, err := p.Process(context.Background(), &cam, testSnapshot(t, 4))
	require.NoError(t, err)
	require.NotNil(t, detection)
	assert.False(t, detection.FoesDetected)
	assert.FileExists(t, detection.ImagePath)
}

func TestProcessDefaultLevelKeepsSceneWithDescription(t *testing.T) {
	t.Parallel()

	detector := &detect.StaticDetector{}
	detector.SetResult(detect.Result{SceneDescription: "empty feeder, no animals"})

	ds := &datastore.MockStore{}
	ds.On("UpdateCameraImageHash", uint(1), mock.AnythingOfType("string")).Return(nil)
	ds.On("SaveDetection", mock.AnythingOfType("*datastore.Detection"), mock.Anything).Return(nil)

	p := pipelineWith(t, ds, detector, nil)
	cam := datastore.Camera{ID: 1, Name: "garden"}

	detection, err := p.Process(context.Background(), &cam, testSnapshot(t, 4))
	require.NoError(t, err)
	assert.NotNil(t, detection)
}

func TestProcessRejectsMalformedImage(t *testing.T) {
	t.Parallel()

	p := pipelineWith(t, &datastore.MockStore{}, &detect.StaticDetector{}, nil)
	cam := datastore.Camera{ID: 1, Name: "garden"}

	_, err := p.Process(context.Background(), &cam, []byte("not an image"))
	require.Error(t, err)
}

func TestPrimaryFoeKind(t *testing.T) {
	t.Parallel()

	assert.Empty(t, PrimaryFoeKind(nil))
	assert.Equal(t, "CROWS", PrimaryFoeKind([]datastore.Foe{
		{Kind: "RATS", Confidence: 0.5},
		{Kind: "CROWS", Confidence: 0.8},
	}))
}

func TestSnapshotFilenameShape(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	name := snapshotFilename("Garden Cam", ts)
	assert.Regexp(t, `^garden-cam_20260314_150926_[0-9a-f]{8}\.jpg$`, name)
}
