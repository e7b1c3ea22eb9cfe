// Package mqtt publishes detection and effectiveness events to an MQTT
// broker for home-automation integrations.
package mqtt

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/logging"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the specified topic on the MQTT broker.
	Publish(ctx context.Context, topic, payload string) error

	// IsConnected returns true if the client is currently connected.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker and stops any
	// pending reconnect attempts.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Retain            bool
	ReconnectCooldown time.Duration
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
}

// DefaultConfig returns a Config with reasonable default values.
func DefaultConfig(settings *conf.MQTTSettings, clientID string) Config {
	return Config{
		Broker:            settings.Broker,
		ClientID:          clientID,
		Username:          settings.Username,
		Password:          settings.Password,
		Retain:            settings.Retain,
		ReconnectCooldown: 5 * time.Second,
		ReconnectDelay:    time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
	}
}

var logger *slog.Logger

func init() {
	logger = logging.ForService("mqtt")
}
