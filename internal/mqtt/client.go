package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
)

// client implements the Client interface on top of the paho MQTT library.
type client struct {
	config          Config
	internalClient  pahomqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	reconnectTimer  *time.Timer
	reconnectStop   chan struct{}
	stopOnce        sync.Once
	metrics         *metrics.MQTTMetrics
}

// NewClient creates a new MQTT client with the provided configuration.
// Metrics may be nil; publishing still works without instrumentation.
func NewClient(config Config, mqttMetrics *metrics.MQTTMetrics) Client {
	return &client{
		config:        config,
		reconnectStop: make(chan struct{}),
		metrics:       mqttMetrics,
	}
}

// Connect attempts to establish a connection to the MQTT broker. The broker
// hostname is resolved first so DNS failures surface immediately instead of
// being retried silently inside paho.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Context("broker", c.config.Broker).
			Build()
	}

	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryMQTTConnection).
				Context("host", host).
				Build()
		}
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = pahomqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return errors.Newf("connection timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			NetworkContext(c.config.Broker, c.config.ConnectTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.config.Broker).
			Build()
	}

	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	var timer *metrics.PublishTimer
	if c.metrics != nil {
		timer = c.metrics.StartPublishTimer()
		defer timer.ObserveDuration()
	}

	token := c.internalClient.Publish(topic, 0, c.config.Retain, payload)
	if !token.WaitTimeout(c.config.PublishTimeout) {
		if c.metrics != nil {
			c.metrics.IncrementErrors()
		}
		return errors.Newf("publish timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Timing("publish", c.config.PublishTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.IncrementErrors()
		}
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	if c.metrics != nil {
		c.metrics.IncrementMessagesDelivered()
		c.metrics.ObserveMessageSize(float64(len(payload)))
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.stopOnce.Do(func() { close(c.reconnectStop) })

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(250)
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
	}
}

func (c *client) onConnect(_ pahomqtt.Client) {
	logger.Info("Connected to MQTT broker", "broker", c.config.Broker)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
}

func (c *client) onConnectionLost(_ pahomqtt.Client, err error) {
	logger.Warn("Connection to MQTT broker lost", "broker", c.config.Broker, "error", err)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
		c.metrics.IncrementErrors()
	}
	c.startReconnectTimer()
}

func (c *client) startReconnectTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectTimer = time.AfterFunc(c.config.ReconnectDelay, func() {
		select {
		case <-c.reconnectStop:
		default:
			c.reconnectWithBackoff()
		}
	})
}

// reconnectWithBackoff retries the connection, doubling the delay between
// attempts up to five minutes, until it succeeds or Disconnect is called.
func (c *client) reconnectWithBackoff() {
	backoff := time.Second
	const maxBackoff = 5 * time.Minute

	for {
		if c.metrics != nil {
			c.metrics.IncrementReconnectAttempts()
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			logger.Info("Reconnected to MQTT broker", "broker", c.config.Broker)
			return
		}

		if c.metrics != nil {
			c.metrics.IncrementErrors()
		}
		logger.Warn("Failed to reconnect to MQTT broker", "error", err, "retry_in", backoff)

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-c.reconnectStop:
			return
		}
	}
}
