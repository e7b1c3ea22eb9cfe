// Package pipeline runs one snapshot through the detection stages: change
// gating by perceptual hash, snapshot persistence, foe detection and the
// detection-record lifecycle. The engine calls Process once per camera per
// tick; a nil detection means nothing changed or nothing worth keeping was
// seen.
package pipeline

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/detect"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/imagehash"
	"github.com/tphakala/pestguard-go/internal/logging"
	"github.com/tphakala/pestguard-go/internal/settings"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("pipeline")
}

// Pipeline binds the detector, hash gate and persistence together.
type Pipeline struct {
	ds           datastore.Interface
	detector     detect.Detector
	store        *settings.Store
	snapshotsDir string
	now          func() time.Time
}

// New builds the detection pipeline.
func New(ds datastore.Interface, detector detect.Detector, store *settings.Store, cfg *conf.Settings) *Pipeline {
	return &Pipeline{
		ds:           ds,
		detector:     detector,
		store:        store,
		snapshotsDir: cfg.Media.SnapshotsDir,
		now:          time.Now,
	}
}

// Process runs one snapshot through the pipeline. Returns nil when the scene
// has not changed or the capture level says the result is not worth keeping.
// Detector failures persist a failed detection record and return it so the
// caller can skip deterrence without losing the event.
func (p *Pipeline) Process(ctx context.Context, cam *datastore.Camera, snapshot []byte) (*datastore.Detection, error) {
	hash, err := imagehash.HashBytes(snapshot)
	if err != nil {
		return nil, err
	}

	// Change gate: an unchanged scene costs nothing past this point.
	if cam.LastImageHash != "" {
		distance, derr := imagehash.Distance(hash, cam.LastImageHash)
		if derr == nil && distance < p.store.ChangeThreshold() {
			logger.Debug("Scene unchanged, skipping detection",
				"camera", cam.Name, "distance", distance)
			return nil, nil
		}
	}

	snapshotPath, err := p.persistSnapshot(cam, snapshot)
	if err != nil {
		return nil, err
	}

	if err := p.ds.UpdateCameraImageHash(cam.ID, hash); err != nil {
		logger.Error("Failed to store camera image hash", "camera", cam.Name, "error", err)
	}
	cam.LastImageHash = hash

	result, detectErr := p.detector.Detect(ctx, snapshot)
	if detectErr != nil {
		detection := &datastore.Detection{
			CameraID:    cam.ID,
			Status:      "failed",
			ImagePath:   snapshotPath,
			ImageHash:   hash,
			ErrorDetail: detectErr.Error(),
		}
		if err := p.ds.SaveDetection(detection, nil); err != nil {
			return nil, err
		}
		logger.Warn("Detector failed, recorded failed detection",
			"camera", cam.Name, "detection_id", detection.ID, "error", detectErr)
		return detection, nil
	}

	detect.Normalize(&result, p.store.ConfidenceThreshold())

	if !p.shouldPersist(&result) {
		if err := os.Remove(snapshotPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove uninteresting snapshot", "path", snapshotPath, "error", err)
		}
		return nil, nil
	}

	detection := &datastore.Detection{
		CameraID:     cam.ID,
		Status:       "processed",
		ImagePath:    snapshotPath,
		ImageHash:    hash,
		DetectorRaw:  result.Raw,
		AICost:       result.Cost,
		FoesDetected: hasKnownFoe(result.Foes),
		PrimaryFoe:   primaryKind(result.Foes),
	}
	foes := toFoeRows(result.Foes, imageSize(snapshot))

	if err := p.ds.SaveDetection(detection, foes); err != nil {
		return nil, err
	}

	logger.Info("Detection recorded",
		"camera", cam.Name,
		"detection_id", detection.ID,
		"foes", len(foes),
		"primary", detection.PrimaryFoe)
	return detection, nil
}

// shouldPersist applies the snapshot capture level to a normalized result.
// Level 0 keeps only confirmed pests, level 1 keeps anything recognized,
// level 2 keeps everything that passed the change gate.
func (p *Pipeline) shouldPersist(result *detect.Result) bool {
	switch p.store.SnapshotCaptureLevel() {
	case 0:
		return hasKnownFoe(result.Foes)
	case 2:
		return true
	default:
		return len(result.Foes) > 0 || result.SceneDescription != ""
	}
}

// PersistFollowUp writes a follow-up snapshot taken after deterrent playback
// to the snapshots directory. No detection record is created for it.
func (p *Pipeline) PersistFollowUp(cam *datastore.Camera, snapshot []byte) (string, error) {
	return p.persistSnapshot(cam, snapshot)
}

func (p *Pipeline) persistSnapshot(cam *datastore.Camera, snapshot []byte) (string, error) {
	if err := os.MkdirAll(p.snapshotsDir, 0o755); err != nil {
		return "", errors.New(err).
			Component("pipeline").
			Category(errors.CategoryFileIO).
			Context("operation", "create_snapshots_dir").
			Build()
	}

	name := snapshotFilename(cam.Name, p.now())
	path := filepath.Join(p.snapshotsDir, name)
	if err := os.WriteFile(path, snapshot, 0o644); err != nil {
		return "", errors.New(err).
			Component("pipeline").
			Category(errors.CategorySnapshot).
			FileContext(path, int64(len(snapshot))).
			Build()
	}
	return path, nil
}

// snapshotFilename renders <camera>_<yyyymmdd_hhmmss>_<hex8>.jpg.
func snapshotFilename(cameraName string, ts time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return slugify(cameraName) + "_" + ts.Format("20060102_150405") + "_" + suffix + ".jpg"
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

// hasKnownFoe reports whether at least one foe is a confirmed pest kind.
func hasKnownFoe(foes []detect.Foe) bool {
	for _, foe := range foes {
		if foe.Kind != detect.KindUnknown {
			return true
		}
	}
	return false
}

// primaryKind returns the kind of the highest-confidence foe, empty if none.
func primaryKind(foes []detect.Foe) string {
	best := -1.0
	kind := ""
	for _, foe := range foes {
		if foe.Confidence > best {
			best = foe.Confidence
			kind = foe.Kind
		}
	}
	return kind
}

// PrimaryFoeKind returns the kind of the max-confidence foe on a stored
// detection, empty if the detection has no foes.
func PrimaryFoeKind(foes []datastore.Foe) string {
	best := -1.0
	kind := ""
	for _, foe := range foes {
		if foe.Confidence > best {
			best = foe.Confidence
			kind = foe.Kind
		}
	}
	return kind
}

// imageSize decodes just the header to learn the pixel dimensions.
func imageSize(snapshot []byte) image.Point {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(snapshot))
	if err != nil {
		return image.Point{}
	}
	return image.Point{X: cfg.Width, Y: cfg.Height}
}

// toFoeRows converts normalized detector foes into datastore rows, scaling
// the relative bounding boxes to pixel coordinates.
func toFoeRows(foes []detect.Foe, size image.Point) []datastore.Foe {
	rows := make([]datastore.Foe, 0, len(foes))
	for _, foe := range foes {
		rows = append(rows, datastore.Foe{
			Kind:       foe.Kind,
			Confidence: foe.Confidence,
			BoxX:       int(foe.BBox.X * float64(size.X)),
			BoxY:       int(foe.BBox.Y * float64(size.Y)),
			BoxWidth:   int(foe.BBox.Width * float64(size.X)),
			BoxHeight:  int(foe.BBox.Height * float64(size.Y)),
		})
	}
	return rows
}
