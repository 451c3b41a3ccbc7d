package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when GRAYLOGIC_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for Gray Logic Video.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Relay     RelayConfig     `yaml:"relay"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// CameraConfig describes the Axis camera and the video output built on it.
type CameraConfig struct {
	// ID names the camera on the bus and in stored sessions.
	ID string `yaml:"id"`

	// Address is "host[:port]" or a full "scheme://host[:port]" base URL.
	Address string `yaml:"address"`

	// OutputName is the root record name. Default: "videoOutput".
	OutputName string `yaml:"output_name"`

	// ConnectTimeout bounds dialing and response headers (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// BackoffDelay is the wait before each reconnect (milliseconds).
	BackoffDelay int `yaml:"backoff_delay_ms"`

	// IdleTimeout ends a stream that stops delivering frames (seconds).
	// Negative disables the watchdog.
	IdleTimeout int `yaml:"idle_timeout"`

	// MaxFrameSize bounds a single frame in bytes.
	MaxFrameSize int64 `yaml:"max_frame_size"`

	// FrameRate is the nominal rate advertised as the sampling period.
	FrameRate float64 `yaml:"frame_rate"`

	// StartPaused defers streaming until it is enabled over MQTT or the API.
	StartPaused bool `yaml:"start_paused"`

	Endpoints CameraEndpointsConfig `yaml:"endpoints"`
}

// CameraEndpointsConfig overrides the VAPIX paths.
type CameraEndpointsConfig struct {
	Scheme    string `yaml:"scheme"`
	ImageSize string `yaml:"image_size"`
	Video     string `yaml:"video"`
}

// RelayConfig controls publication of the output onto MQTT.
type RelayConfig struct {
	Enabled bool `yaml:"enabled"`

	// FrameInterval publishes every Nth frame. Default: 1.
	FrameInterval int `yaml:"frame_interval"`

	// StatusInterval is the retained status period (seconds).
	StatusInterval int `yaml:"status_interval"`
}

// TelemetryConfig controls the InfluxDB stream sampler.
type TelemetryConfig struct {
	// SampleInterval is the sampling period (seconds).
	SampleInterval int `yaml:"sample_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	TLS       TLSConfig        `yaml:"tls"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	BodyLimit int64            `yaml:"body_limit"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
// Write applies to bounded responses only; live streams are exempt.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
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
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	Auth AuthConfig `yaml:"auth"`
	JWT  JWTConfig  `yaml:"jwt"`
}

// AuthConfig toggles bearer authentication on the video API.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// PathFromEnv returns GRAYLOGIC_CONFIG, or DefaultPath when unset.
func PathFromEnv() string {
	if v := os.Getenv("GRAYLOGIC_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_CAMERA_ADDRESS, GRAYLOGIC_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Camera: CameraConfig{
			ID:             "camera-1",
			OutputName:     "videoOutput",
			ConnectTimeout: 10,
			BackoffDelay:   1000,
			IdleTimeout:    10,
			MaxFrameSize:   8 << 20,
			FrameRate:      30,
		},
		Relay: RelayConfig{
			Enabled:        true,
			FrameInterval:  1,
			StatusInterval: 30,
		},
		Telemetry: TelemetryConfig{
			SampleInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-video.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-video",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			BodyLimit: 1 << 20,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			Auth: AuthConfig{Enabled: true},
			JWT:  JWTConfig{Issuer: "graylogic"},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Camera
	if v := os.Getenv("GRAYLOGIC_CAMERA_ID"); v != "" {
		cfg.Camera.ID = v
	}
	if v := os.Getenv("GRAYLOGIC_CAMERA_ADDRESS"); v != "" {
		cfg.Camera.Address = v
	}
	if v := os.Getenv("GRAYLOGIC_CAMERA_START_PAUSED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Camera.StartPaused = b
		}
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
// Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var errs []string

	// Camera validation
	if c.Camera.ID == "" {
		errs = append(errs, "camera.id is required")
	} else if strings.ContainsAny(c.Camera.ID, "/#+") {
		errs = append(errs, "camera.id must not contain MQTT topic characters (/ # +)")
	}
	if strings.TrimSpace(c.Camera.Address) == "" {
		errs = append(errs, "camera.address is required (set GRAYLOGIC_CAMERA_ADDRESS environment variable)")
	}
	if c.Camera.BackoffDelay < 0 {
		errs = append(errs, "camera.backoff_delay_ms must not be negative")
	}
	if c.Camera.MaxFrameSize < 0 {
		errs = append(errs, "camera.max_frame_size must not be negative")
	}
	if c.Camera.FrameRate < 0 {
		errs = append(errs, "camera.frame_rate must not be negative")
	}

	// Relay validation
	if c.Relay.FrameInterval < 0 {
		errs = append(errs, "relay.frame_interval must not be negative")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation. The secret is only needed when auth is on, but
	// then it must be strong enough to resist forgery.
	const minJWTSecretLength = 32
	if c.Security.Auth.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when security.auth.enabled is true (set GRAYLOGIC_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
		}
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

// GetConnectTimeout returns the camera connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Camera.ConnectTimeout) * time.Second
}

// GetBackoffDelay returns the reconnect delay as a Duration.
func (c *Config) GetBackoffDelay() time.Duration {
	return time.Duration(c.Camera.BackoffDelay) * time.Millisecond
}

// GetIdleStreamTimeout returns the stream watchdog timeout as a Duration.
// A negative setting is preserved so the watchdog stays disabled.
func (c *Config) GetIdleStreamTimeout() time.Duration {
	return time.Duration(c.Camera.IdleTimeout) * time.Second
}

// GetSamplingPeriod returns the nominal frame interval, or zero when no
// frame rate is configured.
func (c *Config) GetSamplingPeriod() time.Duration {
	if c.Camera.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.Camera.FrameRate)
}

// GetStatusInterval returns the relay status period as a Duration.
func (c *Config) GetStatusInterval() time.Duration {
	return time.Duration(c.Relay.StatusInterval) * time.Second
}

// GetSampleInterval returns the telemetry sampling period as a Duration.
func (c *Config) GetSampleInterval() time.Duration {
	return time.Duration(c.Telemetry.SampleInterval) * time.Second
}

// GetPingInterval returns the WebSocket ping period as a Duration.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.WebSocket.PingInterval) * time.Second
}

// GetPongTimeout returns the WebSocket pong wait as a Duration.
func (c *Config) GetPongTimeout() time.Duration {
	return time.Duration(c.WebSocket.PongTimeout) * time.Second
}
