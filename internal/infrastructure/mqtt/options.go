package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/printwatch/internal/infrastructure/config"
)

const (
	connectTimeout  = 10 * time.Second
	publishTimeout  = 5 * time.Second
	keepAlive       = 60 * time.Second
	disconnectQuiet = 1000 // milliseconds allowed for in-flight work on Close

	maxQoS = 2
)

// Presence states and reasons published on Topics.Presence.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"

	ReasonShutdown = "shutdown"
	ReasonLost     = "connection_lost"
)

// Presence is the retained payload announcing whether the bot is running.
// The broker publishes the offline form itself when the connection drops.
type Presence struct {
	State   string    `json:"state"`
	Bot     string    `json:"bot"`
	Version string    `json:"version,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// Option configures Connect.
type Option func(*Client)

// WithVersion includes the build version in presence messages.
func WithVersion(version string) Option {
	return func(c *Client) { c.version = version }
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// pahoOptions translates cfg and registers c's connection handlers and
// last will.
func (c *Client) pahoOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetOnConnectHandler(func(pahomqtt.Client) { c.connected() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetBinaryWill(c.topics.Presence(), c.presence(PresenceOffline, ReasonLost), 1, true)
	return opts
}

func (c *Client) presence(state, reason string) []byte {
	//nolint:errchkjson // strings and a time only
	data, _ := json.Marshal(Presence{
		State:   state,
		Bot:     c.clientID,
		Version: c.version,
		Reason:  reason,
		At:      c.now().UTC(),
	})
	return data
}
