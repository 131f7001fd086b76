package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/printwatch/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	cfg := config.MQTTConfig{Enabled: true, QoS: 1}
	cfg.Broker.Host = "127.0.0.1"
	cfg.Broker.Port = 1883
	cfg.Broker.ClientID = "printwatch-test"
	cfg.Reconnect.InitialDelay = 1
	cfg.Reconnect.MaxDelay = 30
	return cfg
}

// connectOrSkip connects to a local broker or skips the test.
func connectOrSkip(t *testing.T) *Client {
	t.Helper()
	client, err := Connect(testConfig())
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name   string
		topics Topics
		got    func(Topics) string
		want   string
	}{
		{"state default", Topics{}, Topics.PrinterState, "printwatch/printer/state"},
		{"events default", Topics{}, Topics.PrinterEvents, "printwatch/printer/events"},
		{"presence default", Topics{}, Topics.Presence, "printwatch/bot/presence"},
		{"custom prefix", Topics{Prefix: "lab/um3"}, Topics.PrinterState, "lab/um3/printer/state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got(tt.topics); got != tt.want {
				t.Errorf("topic = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPahoOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "bot"
	cfg.Auth.Password = "secret"

	opts := newClient(cfg).pahoOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "printwatch-test" {
		t.Errorf("ClientID = %q, want printwatch-test", opts.ClientID)
	}
	if opts.Username != "bot" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want bot/secret", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != 30*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 30s", opts.MaxReconnectInterval)
	}

	cfg.Broker.TLS = true
	opts = newClient(cfg).pahoOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("TLS scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Error("TLS config not set with minimum version")
	}
}

func TestLastWill(t *testing.T) {
	cfg := testConfig()
	cfg.TopicPrefix = "lab/um3"
	c := newClient(cfg, WithVersion("1.2.3"))
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	opts := c.pahoOptions(cfg)
	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatalf("will enabled/retained = %v/%v, want true/true", opts.WillEnabled, opts.WillRetained)
	}
	if opts.WillTopic != "lab/um3/bot/presence" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var p Presence
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("decoding will payload: %v", err)
	}
	want := Presence{State: PresenceOffline, Bot: "printwatch-test", Version: "1.2.3", Reason: ReasonLost, At: c.now()}
	if p != want {
		t.Errorf("will = %+v, want %+v", p, want)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", nil, 0, ErrInvalidTopic},
		{"bad qos", "t", nil, 3, ErrInvalidQoS},
		{"oversized", "t", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"not connected", "t", []byte("x"), 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_NilSafe(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestConnect_PublishAndHealth(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.PublishRetained("printwatch/test/retained", []byte(`{"ok":true}`)); err != nil {
		t.Errorf("PublishRetained() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck(cancelled) error = nil")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for connect timeout")
	}
	cfg := testConfig()
	cfg.Broker.Port = 1 // nothing listens here

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
