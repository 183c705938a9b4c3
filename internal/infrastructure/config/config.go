package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-fastcon/internal/mesh/protocol"
)

// Config is the root configuration structure for the Fastcon bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Fastcon   FastconConfig   `yaml:"fastcon"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Sizes are in megabytes and ages in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT     JWTConfig         `yaml:"jwt"`
	Clients map[string]string `yaml:"clients"` // client_id → client_secret for /auth/token
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// DiscoveryConfig contains mDNS announcement settings.
type DiscoveryConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Instance   string   `yaml:"instance"`
	Service    string   `yaml:"service"`
	Domain     string   `yaml:"domain"`
	Interfaces []string `yaml:"interfaces"`
}

// Transport names for FastconConfig.Transport.
const (
	TransportHCI  = "hci"
	TransportMQTT = "mqtt"
)

// FastconConfig contains the mesh controller settings.
type FastconConfig struct {
	// MeshKey is the 4-byte mesh key as 8 hex characters.
	MeshKey string `yaml:"mesh_key"`

	// AdvIntervalMin and AdvIntervalMax bound the advertising interval in
	// units of 0.625 ms.
	AdvIntervalMin int `yaml:"adv_interval_min"`
	AdvIntervalMax int `yaml:"adv_interval_max"`

	// AdvDurationMs is how long each command stays on air.
	AdvDurationMs int `yaml:"adv_duration_ms"`

	// AdvGapMs is the quiet period between commands.
	AdvGapMs int `yaml:"adv_gap_ms"`

	// MaxQueueSize bounds the number of pending commands.
	MaxQueueSize int `yaml:"max_queue_size"`

	// PollIntervalMs is the scheduler tick.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// Transport selects the radio: "hci" (local adapter) or "mqtt" (BLE proxy).
	Transport string `yaml:"transport"`

	// HCIDevice is the adapter index for the hci transport (0 = hci0).
	HCIDevice int `yaml:"hci_device"`

	// AdvertiserProxy is the proxy id for the mqtt transport.
	AdvertiserProxy string `yaml:"advertiser_proxy"`

	// HealthInterval is the health report period in seconds.
	HealthInterval int `yaml:"health_interval"`

	// EventBuffer is the size of the bridge's event channel.
	EventBuffer int `yaml:"event_buffer"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_FASTCON_MESH_KEY
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
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/fastcon.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-fastcon",
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
			File: FileLoggingConfig{
				Path:       "./logs/fastcon.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
				Compress:   true,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Discovery: DiscoveryConfig{
			Enabled:  false,
			Instance: "Gray Logic Fastcon",
			Service:  "_graylogic-fastcon._tcp",
			Domain:   "local.",
		},
		Fastcon: FastconConfig{
			AdvIntervalMin:  0x20,
			AdvIntervalMax:  0x40,
			AdvDurationMs:   50,
			AdvGapMs:        10,
			MaxQueueSize:    100,
			PollIntervalMs:  5,
			Transport:       TransportHCI,
			AdvertiserProxy: "esp32",
			HealthInterval:  30,
			EventBuffer:     256,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
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

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Fastcon
	if v := os.Getenv("GRAYLOGIC_FASTCON_MESH_KEY"); v != "" {
		cfg.Fastcon.MeshKey = v
	}
	if v := os.Getenv("GRAYLOGIC_FASTCON_TRANSPORT"); v != "" {
		cfg.Fastcon.Transport = v
	}
	if v := os.Getenv("GRAYLOGIC_FASTCON_HCI_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fastcon.HCIDevice = n
		}
	}
}

// Validate checks the configuration for errors and security issues.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
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

	// Security validation - JWT secret is REQUIRED. A forged token could
	// factory-reset every light on the mesh.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	errs = append(errs, c.Fastcon.validate()...)

	if c.Discovery.Enabled && c.Discovery.Service == "" {
		errs = append(errs, "discovery.service is required when discovery is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate reports problems in the fastcon section. The checks match
// mesh.Config.Validate.
func (f FastconConfig) validate() []string {
	var errs []string

	if _, err := protocol.ParseMeshKey(f.MeshKey); err != nil {
		errs = append(errs, "fastcon.mesh_key must be 8 hex characters (set GRAYLOGIC_FASTCON_MESH_KEY)")
	}
	if f.AdvIntervalMin < 0 || f.AdvIntervalMin > 0xFFFF || f.AdvIntervalMax < 0 || f.AdvIntervalMax > 0xFFFF {
		errs = append(errs, "fastcon.adv_interval_min and adv_interval_max must fit in 16 bits")
	} else if f.AdvIntervalMax < f.AdvIntervalMin {
		errs = append(errs, "fastcon.adv_interval_max must be greater than or equal to adv_interval_min")
	}
	if f.AdvDurationMs <= 0 {
		errs = append(errs, "fastcon.adv_duration_ms must be positive")
	}
	if f.AdvGapMs < 0 {
		errs = append(errs, "fastcon.adv_gap_ms must not be negative")
	}
	if f.MaxQueueSize <= 0 {
		errs = append(errs, "fastcon.max_queue_size must be greater than 0")
	}
	if f.PollIntervalMs <= 0 {
		errs = append(errs, "fastcon.poll_interval_ms must be positive")
	}
	switch f.Transport {
	case TransportHCI:
		if f.HCIDevice < 0 {
			errs = append(errs, "fastcon.hci_device must not be negative")
		}
	case TransportMQTT:
		if f.AdvertiserProxy == "" || strings.ContainsAny(f.AdvertiserProxy, "/+#") {
			errs = append(errs, "fastcon.advertiser_proxy must be a single topic level")
		}
	default:
		errs = append(errs, fmt.Sprintf("fastcon.transport must be %q or %q", TransportHCI, TransportMQTT))
	}

	return errs
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

// Key returns the parsed mesh key.
func (f FastconConfig) Key() (protocol.MeshKey, error) {
	return protocol.ParseMeshKey(f.MeshKey)
}

// GetAdvDuration returns the advertising duration as a Duration.
func (f FastconConfig) GetAdvDuration() time.Duration {
	return time.Duration(f.AdvDurationMs) * time.Millisecond
}

// GetAdvGap returns the advertising gap as a Duration.
func (f FastconConfig) GetAdvGap() time.Duration {
	return time.Duration(f.AdvGapMs) * time.Millisecond
}

// GetPollInterval returns the scheduler tick as a Duration.
func (f FastconConfig) GetPollInterval() time.Duration {
	return time.Duration(f.PollIntervalMs) * time.Millisecond
}

// GetHealthInterval returns the health report period as a Duration.
func (f FastconConfig) GetHealthInterval() time.Duration {
	return time.Duration(f.HealthInterval) * time.Second
}
