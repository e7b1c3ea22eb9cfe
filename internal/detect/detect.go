// Package detect defines the foe detector contract and its implementations.
// A detector takes raw snapshot bytes and reports which pest animals are
// visible. Detected kinds normalize to a fixed enum; anything the backend
// reports outside it maps to UNKNOWN.
package detect

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/logging"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("detect")
}

// Pest kinds the deterrence machinery understands.
const (
	KindRats    = "RATS"
	KindCrows   = "CROWS"
	KindCats    = "CATS"
	KindHerons  = "HERONS"
	KindPigeons = "PIGEONS"
	KindUnknown = "UNKNOWN"
)

// BBox is a normalized bounding box, coordinates in [0,1].
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Foe is one detected pest instance.
type Foe struct {
	Kind        string  `json:"kind"`
	Confidence  float64 `json:"confidence"`
	BBox        BBox    `json:"bbox"`
	Description string  `json:"description,omitempty"`
}

// Result is the outcome of one detector invocation.
type Result struct {
	FoesDetected     bool    `json:"foes_detected"`
	Foes             []Foe   `json:"foes"`
	SceneDescription string  `json:"scene_description,omitempty"`
	Cost             float64 `json:"cost"` // estimated cost in USD, 0 for local backends
	Raw              string  `json:"-"`    // backend response blob for the detection record
}

// Detector classifies pest animals in a snapshot.
type Detector interface {
	Detect(ctx context.Context, image []byte) (Result, error)
}

// New builds the configured detector backend.
func New(cfg *conf.Settings) (Detector, error) {
	switch cfg.Detect.Provider {
	case "openai", "":
		return NewOpenAIDetector(&cfg.Detect), nil
	case "static":
		return &StaticDetector{}, nil
	default:
		return nil, errors.Newf("unknown detector provider %q", cfg.Detect.Provider).
			Component("detect").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// kindAliases maps backend species labels to the pest enum.
var kindAliases = map[string]string{
	"rat": KindRats, "rats": KindRats, "rodent": KindRats, "mouse": KindRats, "mice": KindRats,
	"crow": KindCrows, "crows": KindCrows, "raven": KindCrows, "magpie": KindCrows, "jackdaw": KindCrows,
	"cat": KindCats, "cats": KindCats,
	"heron": KindHerons, "herons": KindHerons, "grey heron": KindHerons,
	"pigeon": KindPigeons, "pigeons": KindPigeons, "dove": KindPigeons,
}

// NormalizeKind maps a backend label onto the pest enum. Unrecognized labels
// become UNKNOWN.
func NormalizeKind(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if kind, ok := kindAliases[key]; ok {
		return kind
	}
	switch strings.ToUpper(key) {
	case KindRats, KindCrows, KindCats, KindHerons, KindPigeons:
		return strings.ToUpper(key)
	}
	return KindUnknown
}

// Normalize rewrites foe kinds onto the enum and drops foes below the
// confidence threshold. FoesDetected is recomputed from what survives.
func Normalize(result *Result, confidenceThreshold float64) {
	kept := result.Foes[:0]
	for _, foe := range result.Foes {
		foe.Kind = NormalizeKind(foe.Kind)
		if foe.Confidence < confidenceThreshold {
			logger.Debug("Dropping low-confidence foe", "kind", foe.Kind, "confidence", foe.Confidence)
			continue
		}
		kept = append(kept, foe)
	}
	result.Foes = kept
	result.FoesDetected = len(kept) > 0
}
