package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted by avr.transport.
const (
	TransportTCP  = "tcp"
	TransportHTTP = "http"
)

// Config is the root configuration structure for Catspaw.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	AVR       AVRConfig       `yaml:"avr"`
	Display   DisplayConfig   `yaml:"display"`
	CEC       CECConfig       `yaml:"cec"`
	Power     PowerConfig     `yaml:"power"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies this installation in logs, topics and metrics.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// AVRConfig describes the receiver endpoint and the timing of every
// exchange with it.
type AVRConfig struct {
	Host string `yaml:"host"`

	// Port is the TCP command port. Ignored by the http transport.
	Port int `yaml:"port"`

	// Transport selects the device generation: "tcp" (line protocol)
	// or "http" (status document + event handler).
	Transport string `yaml:"transport"`

	// NetworkTimeout bounds the wait for the host network to come up.
	NetworkTimeout time.Duration `yaml:"network_timeout"`

	// ConnectTimeout bounds the whole connect-with-retry loop.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// RetryBackoff is the pause between refused connection attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// ReadTimeout bounds the wait for a reply line.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// HTTPTimeout bounds each request of the http transport.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// HTTPSettle is the pause between an http command and the status
	// fetch that reports its effect. Zero fetches immediately.
	HTTPSettle time.Duration `yaml:"http_settle"`

	// CommandTimeout bounds one controller operation end to end,
	// including the wait for the command slot.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// DisplayConfig controls the volume popup timing.
type DisplayConfig struct {
	PopupHideAfter time.Duration `yaml:"popup_hide_after"`
}

// CECConfig controls the cec-client subprocess used to drive the TV.
type CECConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Binary              string        `yaml:"binary"`
	Args                []string      `yaml:"args"`
	LogicalAddress      int           `yaml:"logical_address"`
	RestartOnFailure    bool          `yaml:"restart_on_failure"`
	RestartDelay        time.Duration `yaml:"restart_delay"`
	MaxRestartAttempts  int           `yaml:"max_restart_attempts"`
	CommandSettleWindow time.Duration `yaml:"command_settle_window"`
}

// PowerConfig controls system suspend and resume handling.
type PowerConfig struct {
	// HandleEvents powers the TV and receiver off on suspend and on at resume.
	HandleEvents bool `yaml:"handle_events"`

	// SuspendCommand is run by the poweroff route, e.g. ["systemctl", "suspend"].
	SuspendCommand []string `yaml:"suspend_command"`

	// SuspendDelay lets the HTTP reply leave before the host sleeps.
	SuspendDelay time.Duration `yaml:"suspend_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Version  string           `yaml:"version"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// Output is stdout, stderr or file. "file" appends to File.
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. An empty secret disables API auth.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL is the lifetime in minutes of tokens minted by
	// avrctl token.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CATSPAW_SECTION_KEY
// For example: CATSPAW_AVR_HOST, CATSPAW_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. The AVR host is left
// empty and must be supplied.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "catspaw",
			Name: "Home Theater",
		},
		AVR: AVRConfig{
			Port:           8102,
			Transport:      TransportTCP,
			NetworkTimeout: 5 * time.Second,
			ConnectTimeout: 5 * time.Second,
			RetryBackoff:   500 * time.Millisecond,
			ReadTimeout:    2 * time.Second,
			HTTPTimeout:    time.Second,
			HTTPSettle:     1500 * time.Millisecond,
			CommandTimeout: 10 * time.Second,
		},
		Display: DisplayConfig{
			PopupHideAfter: 2 * time.Second,
		},
		CEC: CECConfig{
			Binary:              "/usr/bin/cec-client",
			Args:                []string{"-d", "1"},
			RestartOnFailure:    true,
			RestartDelay:        5 * time.Second,
			MaxRestartAttempts:  10,
			CommandSettleWindow: 500 * time.Millisecond,
		},
		Power: PowerConfig{
			HandleEvents:   true,
			SuspendCommand: []string{"systemctl", "suspend"},
			SuspendDelay:   100 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Path:        "./data/catspaw.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "catspaw",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Version: "v1",
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
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
// Environment variables follow the pattern: CATSPAW_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// AVR
	if v := os.Getenv("CATSPAW_AVR_HOST"); v != "" {
		cfg.AVR.Host = v
	}
	if v := os.Getenv("CATSPAW_AVR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.AVR.Port = port
		}
	}
	if v := os.Getenv("CATSPAW_AVR_TRANSPORT"); v != "" {
		cfg.AVR.Transport = strings.ToLower(v)
	}

	// Database
	if v := os.Getenv("CATSPAW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CATSPAW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CATSPAW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CATSPAW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CATSPAW_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("CATSPAW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("CATSPAW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("CATSPAW_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
//
// Every problem found is reported, not just the first one.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// AVR validation
	if c.AVR.Host == "" {
		errs = append(errs, "avr.host is required (set CATSPAW_AVR_HOST environment variable)")
	}
	switch c.AVR.Transport {
	case TransportTCP:
		if c.AVR.Port < 1 || c.AVR.Port > 65535 {
			errs = append(errs, "avr.port must be between 1 and 65535")
		}
	case TransportHTTP:
	default:
		errs = append(errs, fmt.Sprintf("avr.transport must be %q or %q", TransportTCP, TransportHTTP))
	}
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"avr.network_timeout", c.AVR.NetworkTimeout},
		{"avr.connect_timeout", c.AVR.ConnectTimeout},
		{"avr.retry_backoff", c.AVR.RetryBackoff},
		{"avr.read_timeout", c.AVR.ReadTimeout},
		{"avr.http_timeout", c.AVR.HTTPTimeout},
		{"avr.command_timeout", c.AVR.CommandTimeout},
		{"display.popup_hide_after", c.Display.PopupHideAfter},
	}
	for _, to := range timeouts {
		if to.d <= 0 {
			errs = append(errs, to.name+" must be positive")
		}
	}
	if c.AVR.HTTPSettle < 0 {
		errs = append(errs, "avr.http_settle must not be negative")
	}

	if c.CEC.Enabled && c.CEC.Binary == "" {
		errs = append(errs, "cec.binary is required when cec is enabled")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, "websocket.max_message_size must be positive")
	}
	if c.WebSocket.PingInterval <= 0 {
		errs = append(errs, "websocket.ping_interval must be positive")
	}
	if c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.pong_timeout must be positive")
	}

	// An empty secret leaves the API open on the LAN; a short one is refused.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
