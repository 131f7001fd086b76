package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid is returned (wrapped) when the configuration fails validation.
var ErrConfigInvalid = errors.New("config: invalid configuration")

// Config is the root configuration structure for PrintWatch.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Printer   PrinterConfig   `yaml:"printer"`
	Access    AccessConfig    `yaml:"access"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// BotConfig contains chat bot settings.
type BotConfig struct {
	// Token is the chat transport API token. Set via PRINTWATCH_BOT_TOKEN.
	Token string `yaml:"token"`

	// MonitorLevel and ControlLevel name the access levels that gate
	// read-only commands and device settings respectively.
	MonitorLevel string `yaml:"monitor_level"`
	ControlLevel string `yaml:"control_level"`

	// SessionTTL is how long (seconds) an idle settings conversation survives.
	SessionTTL int `yaml:"session_ttl"`

	// PollTimeout is the long-poll timeout (seconds) for fetching updates.
	PollTimeout int `yaml:"poll_timeout"`

	// UploadDir is where model files are staged while being submitted.
	// Empty means the system temporary directory.
	UploadDir string `yaml:"upload_dir"`

	// MaxUploadBytes rejects model files larger than this.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// PrinterConfig contains the printer network and credential settings.
type PrinterConfig struct {
	StaticIP bool   `yaml:"static_ip"`
	IP       string `yaml:"ip"`
	MAC      string `yaml:"mac"`
	Subnet   string `yaml:"subnet"`

	// ID and Key are the digest credential pair issued by the printer.
	ID  string `yaml:"id"`
	Key string `yaml:"key"`

	// RequestTimeout bounds every device request (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	CameraPort int `yaml:"camera_port"`

	// CameraSource selects "snapshot" (single JPEG endpoint) or "stream" (MJPEG).
	CameraSource string `yaml:"camera_source"`

	// ProbeTimeout bounds one active neighbour probe (milliseconds).
	ProbeTimeout int `yaml:"probe_timeout"`

	// ARPTable is the kernel neighbour table path.
	ARPTable string `yaml:"arp_table"`
}

// AccessConfig holds the privilege level table and users.
// Either Levels/Users or UsersFile must be provided.
type AccessConfig struct {
	Levels    []string     `yaml:"access_levels"`
	Users     []UserConfig `yaml:"users"`
	UsersFile string       `yaml:"users_file"`
}

// UserConfig is a single configured user.
type UserConfig struct {
	ID          int64 `yaml:"id" json:"id"`
	AccessLevel int   `yaml:"access_level" json:"access_level"`
	Notify      bool  `yaml:"notify" json:"notify"`
}

// WatcherConfig contains state polling settings.
type WatcherConfig struct {
	// Interval is the polling interval in seconds.
	Interval int `yaml:"interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how many days of state history to keep. 0 keeps everything.
	HistoryRetention int `yaml:"history_retention"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix is the root of every published topic.
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL is the lifetime of issued API tokens in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Users file, when access.users_file is set
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: PRINTWATCH_SECTION_KEY
// For example: PRINTWATCH_PRINTER_MAC, PRINTWATCH_BOT_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If a file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Access.UsersFile != "" {
		if err := cfg.Access.loadUsersFile(); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadUsersFile replaces Levels and Users with the contents of UsersFile.
// The file may be YAML or JSON.
func (a *AccessConfig) loadUsersFile() error {
	data, err := os.ReadFile(a.UsersFile)
	if err != nil {
		return fmt.Errorf("reading users file: %w", err)
	}

	var doc struct {
		Levels []string     `yaml:"access_levels"`
		Users  []UserConfig `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing users file: %w", err)
	}

	a.Levels = doc.Levels
	a.Users = doc.Users
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			MonitorLevel:   "monitor",
			ControlLevel:   "control",
			SessionTTL:     900,
			PollTimeout:    60,
			MaxUploadBytes: 50 << 20,
		},
		Printer: PrinterConfig{
			RequestTimeout: 10,
			CameraPort:     8080,
			CameraSource:   "snapshot",
			ProbeTimeout:   300,
			ARPTable:       "/proc/net/arp",
		},
		Watcher: WatcherConfig{
			Interval: 30,
		},
		Database: DatabaseConfig{
			Path:             "./data/printwatch.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "printwatch",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "printwatch",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PRINTWATCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Bot
	if v := os.Getenv("PRINTWATCH_BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}

	// Printer
	if v := os.Getenv("PRINTWATCH_PRINTER_STATIC_IP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PRINTWATCH_PRINTER_STATIC_IP: %w", err)
		}
		cfg.Printer.StaticIP = b
	}
	if v := os.Getenv("PRINTWATCH_PRINTER_IP"); v != "" {
		cfg.Printer.IP = v
	}
	if v := os.Getenv("PRINTWATCH_PRINTER_MAC"); v != "" {
		cfg.Printer.MAC = v
	}
	if v := os.Getenv("PRINTWATCH_PRINTER_SUBNET"); v != "" {
		cfg.Printer.Subnet = v
	}
	if v := os.Getenv("PRINTWATCH_PRINTER_ID"); v != "" {
		cfg.Printer.ID = v
	}
	if v := os.Getenv("PRINTWATCH_PRINTER_KEY"); v != "" {
		cfg.Printer.Key = v
	}

	// Watcher
	if v := os.Getenv("PRINTWATCH_STATUS_UPDATE_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PRINTWATCH_STATUS_UPDATE_INTERVAL: %w", err)
		}
		cfg.Watcher.Interval = n
	}

	// Database
	if v := os.Getenv("PRINTWATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PRINTWATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PRINTWATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PRINTWATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PRINTWATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("PRINTWATCH_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Access level and user consistency is checked by the access package when the
// registry is built; here only presence is required.
//
// Returns:
//   - error: wrapping ErrConfigInvalid and listing every problem, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bot
	if c.Bot.Token == "" {
		errs = append(errs, "bot.token is required (set PRINTWATCH_BOT_TOKEN)")
	}
	if c.Bot.MonitorLevel == "" || c.Bot.ControlLevel == "" {
		errs = append(errs, "bot.monitor_level and bot.control_level are required")
	}

	// Printer
	if c.Printer.StaticIP {
		if c.Printer.IP == "" {
			errs = append(errs, "printer.ip is required when printer.static_ip is set")
		}
	} else {
		if c.Printer.MAC == "" {
			errs = append(errs, "printer.mac is required unless printer.static_ip is set")
		}
		if c.Printer.Subnet == "" {
			errs = append(errs, "printer.subnet is required unless printer.static_ip is set")
		}
	}
	if c.Printer.ID == "" || c.Printer.Key == "" {
		errs = append(errs, "printer.id and printer.key are required")
	}
	if c.Printer.RequestTimeout <= 0 {
		errs = append(errs, "printer.request_timeout must be positive")
	}
	switch c.Printer.CameraSource {
	case "snapshot", "stream":
	default:
		errs = append(errs, "printer.camera_source must be snapshot or stream")
	}

	// Access
	if len(c.Access.Levels) == 0 {
		errs = append(errs, "access.access_levels is required")
	}
	if c.Access.Users == nil {
		errs = append(errs, "access.users is required")
	}

	// Watcher
	if c.Watcher.Interval <= 0 {
		errs = append(errs, "watcher.interval must be a positive number of seconds")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
		errs = append(errs, "mqtt.topic_prefix must not contain wildcards")
	}

	// API
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		const minJWTSecretLength = 32
		if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters when api.enabled (set PRINTWATCH_JWT_SECRET)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: configuration errors: %s", ErrConfigInvalid, strings.Join(errs, "; "))
	}

	return nil
}

// RequestTimeout returns the per-request device timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Printer.RequestTimeout) * time.Second
}

// PollInterval returns the watcher polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watcher.Interval) * time.Second
}

// SessionTTL returns the idle lifetime of a settings conversation.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Bot.SessionTTL) * time.Second
}
