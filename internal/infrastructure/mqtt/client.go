package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/printwatch/internal/infrastructure/config"
)

// Logger is the logging surface used by the client.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Client publishes to one broker. paho reconnects in the background; every
// (re)connect republishes the online presence.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	topics   Topics
	qos      byte
	clientID string
	version  string
	now      func() time.Time

	mu     sync.RWMutex
	up     bool
	logger Logger
}

// Connect dials the broker described by cfg and waits for the first
// connection. It fails with ErrConnectionFailed when the broker does not
// answer within the connect timeout.
func Connect(cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	c := newClient(cfg, opts...)
	c.paho = pahomqtt.NewClient(c.pahoOptions(cfg))
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: no answer from %s within %v", ErrConnectionFailed, brokerURL(cfg.Broker), connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs on its own goroutine and may still be pending.
	c.setUp(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig, opts ...Option) *Client {
	c := &Client{
		topics:   Topics{Prefix: cfg.TopicPrefix},
		qos:      byte(cfg.QoS), //nolint:gosec // validated to 0..2 by config
		clientID: cfg.Broker.ClientID,
		now:      time.Now,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Topics returns the topic names this client publishes under.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured quality of service.
func (c *Client) QoS() byte {
	return c.qos
}

func (c *Client) setUp(up bool) {
	c.mu.Lock()
	c.up = up
	c.mu.Unlock()
}

func (c *Client) connected() {
	c.setUp(true)
	c.paho.Publish(c.topics.Presence(), c.qos, true, c.presence(PresenceOnline, ""))

	c.log().Info("MQTT connected", "presence", c.topics.Presence())
}

func (c *Client) lost(err error) {
	c.setUp(false)

	c.log().Warn("MQTT connection lost, reconnecting", "error", err)
}

// Close publishes the offline presence and disconnects. It is safe on a
// nil client.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		c.paho.Publish(c.topics.Presence(), c.qos, true, c.presence(PresenceOffline, ReasonShutdown)).
			WaitTimeout(publishTimeout)
	}
	c.paho.Disconnect(disconnectQuiet)
	c.setUp(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether both this client and paho consider the
// connection up.
func (c *Client) IsConnected() bool {
	if c == nil || c.paho == nil {
		return false
	}
	c.mu.RLock()
	up := c.up
	c.mu.RUnlock()
	return up && c.paho.IsConnected()
}

// SetLogger sets the logger for connection events.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}
