package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/errors"
)

// DetectionEvent is the JSON payload published for each processed detection.
type DetectionEvent struct {
	DetectionID uint       `json:"detection_id"`
	Camera      string     `json:"camera"`
	PrimaryFoe  string     `json:"primary_foe,omitempty"`
	Foes        []FoeEvent `json:"foes,omitempty"`
	ImagePath   string     `json:"image_path,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// FoeEvent is one detected pest within a DetectionEvent.
type FoeEvent struct {
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
}

// EffectivenessEvent is the JSON payload published for each measured
// deterrent outcome.
type EffectivenessEvent struct {
	DetectionID uint      `json:"detection_id"`
	PestKind    string    `json:"pest_kind"`
	SoundFile   string    `json:"sound_file"`
	Method      string    `json:"method"`
	FoesBefore  int       `json:"foes_before"`
	FoesAfter   int       `json:"foes_after"`
	Result      string    `json:"result"`
	Score       float64   `json:"score"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher serializes engine events and publishes them under the configured
// topic prefix.
type Publisher struct {
	client Client
	prefix string
}

// NewPublisher wraps an MQTT client with the event topic layout.
func NewPublisher(client Client, topicPrefix string) *Publisher {
	if topicPrefix == "" {
		topicPrefix = "pestguard"
	}
	return &Publisher{client: client, prefix: topicPrefix}
}

// PublishDetection publishes a detection event to <prefix>/detections.
func (p *Publisher) PublishDetection(ctx context.Context, camera string, detection *datastore.Detection, foes []datastore.Foe) error {
	event := DetectionEvent{
		DetectionID: detection.ID,
		Camera:      camera,
		PrimaryFoe:  detection.PrimaryFoe,
		ImagePath:   detection.ImagePath,
		Timestamp:   detection.CreatedAt,
	}
	for _, foe := range foes {
		event.Foes = append(event.Foes, FoeEvent{Kind: foe.Kind, Confidence: foe.Confidence})
	}
	return p.publishJSON(ctx, p.prefix+"/detections", &event)
}

// PublishEffectiveness publishes a measured outcome to <prefix>/effectiveness.
func (p *Publisher) PublishEffectiveness(ctx context.Context, record *datastore.SoundEffectiveness) error {
	event := EffectivenessEvent{
		DetectionID: record.DetectionID,
		PestKind:    record.PestKind,
		SoundFile:   record.SoundFile,
		Method:      record.PlaybackMethod,
		FoesBefore:  record.FoesBefore,
		FoesAfter:   record.FoesAfter,
		Result:      record.Result,
		Score:       record.Score,
		Timestamp:   record.CreatedAt,
	}
	return p.publishJSON(ctx, p.prefix+"/effectiveness", &event)
}

func (p *Publisher) publishJSON(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return p.client.Publish(ctx, topic, string(payload))
}
