package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultDeviceType is the Ubidots device type exported to the partner dashboard.
const DefaultDeviceType = "pile-temp-and-cercospora-monitor"

// Config is the root configuration structure for ubiexport.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Ubidots   UbidotsConfig   `yaml:"ubidots"`
	Export    ExportConfig    `yaml:"export"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// UbidotsConfig contains upstream API settings.
type UbidotsConfig struct {
	BaseURL string `yaml:"base_url"`

	// Token is the account credential sent as X-Auth-Token. Leave empty to be
	// prompted at startup.
	Token string `yaml:"token"`

	DeviceType     string        `yaml:"device_type"`
	PageSize       int           `yaml:"page_size"`
	ValuesPageSize int           `yaml:"values_page_size"`
	Timeout        time.Duration `yaml:"timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// RetryConfig bounds the fixed-delay retry loop around every upstream GET.
type RetryConfig struct {
	// Attempts is the total number of requests made, including the first.
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// ExportConfig controls the generated CSV file.
type ExportConfig struct {
	Dir     string   `yaml:"dir"`
	Prefix  string   `yaml:"prefix"`
	Columns []string `yaml:"columns"`

	// ExitDelay is how long the CLI waits after an export before exiting.
	ExitDelay time.Duration `yaml:"exit_delay"`
}

// DatabaseConfig contains SQLite export history settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`

	// BatchSize is the number of points per write request.
	BatchSize int `yaml:"batch_size"`
}

// MQTTConfig contains settings for publishing exports to the partner broker.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// APIConfig contains session HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the export event stream.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (skipped when path is empty)
//  3. .env files next to the config file and in the working directory
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: UBIEXPORT_SECTION_KEY
// For example: UBIEXPORT_UBIDOTS_TOKEN, UBIEXPORT_EXPORT_DIR
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read or parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := loadDotEnv(path); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env files without overriding variables already set in
// the process environment. Missing files are skipped.
func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		if dir := filepath.Dir(configPath); dir != "." {
			candidates = append([]string{filepath.Join(dir, ".env")}, candidates...)
		}
	}

	for _, file := range candidates {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Ubidots: UbidotsConfig{
			BaseURL:        "https://industrial.api.ubidots.com",
			DeviceType:     DefaultDeviceType,
			PageSize:       100,
			ValuesPageSize: 500,
			Timeout:        30 * time.Second,
			Retry: RetryConfig{
				Attempts: 5,
				Delay:    time.Second,
			},
		},
		Export: ExportConfig{
			Dir:     ".",
			Prefix:  "unl_export",
			Columns: []string{"name", "rh", "t", "lat", "lng"},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/ubiexport.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Measurement: "ubidots_reading",
			BatchSize:   500,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "ubiexport",
			},
			QoS:         1,
			TopicPrefix: "awqp/cls",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 120,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: UBIEXPORT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Ubidots
	if v := os.Getenv("UBIEXPORT_UBIDOTS_TOKEN"); v != "" {
		cfg.Ubidots.Token = v
	}
	if v := os.Getenv("UBIEXPORT_UBIDOTS_BASE_URL"); v != "" {
		cfg.Ubidots.BaseURL = v
	}
	if v := os.Getenv("UBIEXPORT_UBIDOTS_DEVICE_TYPE"); v != "" {
		cfg.Ubidots.DeviceType = v
	}

	// Export
	if v := os.Getenv("UBIEXPORT_EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}

	// Database
	if v := os.Getenv("UBIEXPORT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("UBIEXPORT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("UBIEXPORT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UBIEXPORT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("UBIEXPORT_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("UBIEXPORT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("UBIEXPORT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Ubidots validation
	if u, err := url.Parse(c.Ubidots.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "ubidots.base_url must be an absolute URL")
	}
	if c.Ubidots.DeviceType == "" {
		errs = append(errs, "ubidots.device_type is required")
	}
	if c.Ubidots.PageSize < 1 {
		errs = append(errs, "ubidots.page_size must be at least 1")
	}
	if c.Ubidots.Retry.Attempts < 1 {
		errs = append(errs, "ubidots.retry.attempts must be at least 1")
	}
	if c.Ubidots.Retry.Delay < 0 {
		errs = append(errs, "ubidots.retry.delay cannot be negative")
	}

	// Export validation
	if c.Export.Prefix == "" {
		errs = append(errs, "export.prefix is required")
	}
	if !slices.Contains(c.Export.Columns, "name") {
		errs = append(errs, "export.columns must include name")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be at least 1")
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
