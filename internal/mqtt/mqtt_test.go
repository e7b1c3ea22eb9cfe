package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
)

// fakeClient records published messages without a broker.
type fakeClient struct {
	topics    []string
	payloads  []string
	connected bool
	err       error
}

func (f *fakeClient) Connect(context.Context) error { f.connected = true; return f.err }
func (f *fakeClient) Publish(_ context.Context, topic, payload string) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}
func (f *fakeClient) IsConnected() bool { return f.connected }
func (f *fakeClient) Disconnect()       { f.connected = false }

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	settings := conf.MQTTSettings{
		Broker:   "tcp://broker.local:1883",
		Username: "pg",
		Password: "secret",
		Retain:   true,
	}

	cfg := DefaultConfig(&settings, "pestguard-node")
	assert.Equal(t, "tcp://broker.local:1883", cfg.Broker)
	assert.Equal(t, "pestguard-node", cfg.ClientID)
	assert.True(t, cfg.Retain)
	assert.Equal(t, 5*time.Second, cfg.ReconnectCooldown)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
}

func TestConnectRejectsInvalidBrokerURL(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{Broker: "://not-a-url", ConnectTimeout: time.Second}, nil)
	err := c.Connect(context.Background())
	require.Error(t, err)
}

func TestConnectCooldown(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{
		Broker:            "://not-a-url",
		ReconnectCooldown: time.Minute,
		ConnectTimeout:    time.Second,
	}, nil)

	_ = c.Connect(context.Background())
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too recent")
}

func TestPublishRequiresConnection(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{Broker: "tcp://broker.local:1883", PublishTimeout: time.Second}, nil)
	err := c.Publish(context.Background(), "pestguard/detections", "{}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestPublishDetectionEvent(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{connected: true}
	pub := NewPublisher(fake, "garden")

	detection := &datastore.Detection{
		ID:         7,
		PrimaryFoe: "CROWS",
		ImagePath:  "snapshots/pond_20260314_120000_ab12cd34.jpg",
		CreatedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	foes := []datastore.Foe{
		{Kind: "CROWS", Confidence: 0.91},
		{Kind: "PIGEONS", Confidence: 0.55},
	}

	require.NoError(t, pub.PublishDetection(context.Background(), "Pond Camera", detection, foes))
	require.Len(t, fake.topics, 1)
	assert.Equal(t, "garden/detections", fake.topics[0])

	var event DetectionEvent
	require.NoError(t, json.Unmarshal([]byte(fake.payloads[0]), &event))
	assert.Equal(t, uint(7), event.DetectionID)
	assert.Equal(t, "Pond Camera", event.Camera)
	assert.Equal(t, "CROWS", event.PrimaryFoe)
	require.Len(t, event.Foes, 2)
	assert.InDelta(t, 0.91, event.Foes[0].Confidence, 1e-9)
}

func TestPublishEffectivenessEvent(t *testing.T) {
	t.Parallel()

	fake := &fakeClient{connected: true}
	pub := NewPublisher(fake, "")

	record := &datastore.SoundEffectiveness{
		DetectionID:    7,
		PestKind:       "HERONS",
		SoundFile:      "hawk_cry.wav",
		PlaybackMethod: "camera",
		FoesBefore:     2,
		FoesAfter:      0,
		Result:         "SUCCESS",
		Score:          1,
		CreatedAt:      time.Date(2026, 3, 14, 12, 1, 0, 0, time.UTC),
	}

	require.NoError(t, pub.PublishEffectiveness(context.Background(), record))
	require.Len(t, fake.topics, 1)
	assert.Equal(t, "pestguard/effectiveness", fake.topics[0], "empty prefix falls back to the default")

	var event EffectivenessEvent
	require.NoError(t, json.Unmarshal([]byte(fake.payloads[0]), &event))
	assert.Equal(t, "SUCCESS", event.Result)
	assert.Equal(t, "hawk_cry.wav", event.SoundFile)
	assert.Equal(t, 0, event.FoesAfter)
}
