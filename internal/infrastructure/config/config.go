package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "GRAYLOGIC_EDGE_CONFIG"

// DefaultPath is used when EnvConfigPath is unset.
const DefaultPath = "configs/edge.yaml"

// Config is the root configuration structure for the Gray Logic edge agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	Network      NetworkConfig      `yaml:"network"`
	Store        StoreConfig        `yaml:"store"`
	Broker       BrokerConfig       `yaml:"broker"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Application  ApplicationConfig  `yaml:"application"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	API          APIConfig          `yaml:"api"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DeviceConfig identifies this device.
type DeviceConfig struct {
	// ID is the MQTT client id and the last segment of both topics.
	// A random id is generated at start-up when empty.
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// NetworkConfig controls how network reachability is detected.
type NetworkConfig struct {
	// ProbeAddress is dialled (TCP) to decide whether the uplink is usable.
	ProbeAddress string `yaml:"probe_address"`
	PollInterval int    `yaml:"poll_interval"` // seconds
	DialTimeout  int    `yaml:"dial_timeout"`  // seconds
}

// StoreConfig selects the configuration/secret store backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend"` // sqlite, redis
	SeedFile string         `yaml:"seed_file"`
	Timeout  int            `yaml:"timeout"` // seconds per fetch
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RedisConfig contains the remote store connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BrokerConfig describes how fetched configuration becomes a broker session.
// The broker endpoint itself is never configured here; it is fetched.
type BrokerConfig struct {
	Auth          string `yaml:"auth"`     // certificate, password, azure-sas, jwt
	Encoding      string `yaml:"encoding"` // hex, base64
	TLS           bool   `yaml:"tls"`
	QoS           int    `yaml:"qos"`
	KeepAlive     int    `yaml:"keep_alive"` // seconds
	CleanStart    bool   `yaml:"clean_start"`
	CredentialTTL int    `yaml:"credential_ttl"` // seconds
	JWTAudience   string `yaml:"jwt_audience"`
	InFlightLimit int    `yaml:"in_flight_limit"`
	ConnectWait   int    `yaml:"connect_timeout"` // seconds
}

// OrchestratorConfig tunes the connectivity state machine.
type OrchestratorConfig struct {
	QueueSize          int             `yaml:"queue_size"`
	OutboxSize         int             `yaml:"outbox_size"`
	PollInterval       int             `yaml:"poll_interval_ms"`
	RequestTimeout     int             `yaml:"request_timeout"`  // seconds
	ShutdownTimeout    int             `yaml:"shutdown_timeout"` // seconds
	RefetchOnReconnect bool            `yaml:"refetch_on_reconnect"`
	SendBufferSize     int             `yaml:"send_buffer_size"`
	ReceiveBufferSize  int             `yaml:"receive_buffer_size"`
	Reconnect          ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains the recovery backoff settings.
type ReconnectConfig struct {
	InitialDelay int     `yaml:"initial_delay"` // seconds
	MaxDelay     int     `yaml:"max_delay"`     // seconds
	Multiplier   float64 `yaml:"multiplier"`
	Jitter       float64 `yaml:"jitter"`
	MaxAttempts  int     `yaml:"max_attempts"`
}

// ApplicationConfig selects the device application.
type ApplicationConfig struct {
	Kind            string `yaml:"kind"`             // dummy, switch
	PublishInterval int    `yaml:"publish_interval"` // seconds
	QueueSize       int    `yaml:"queue_size"`
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

// APIConfig contains the local status server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`

	// TokenHash is the Argon2id PHC hash of the operator token required by
	// POST /v1/retry. Empty leaves the endpoint open.
	TokenHash string `yaml:"token_hash"`
}

// WebSocketConfig contains the /v1/events stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Path returns the configuration file path from the environment, or DefaultPath.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
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
// Environment variables follow the pattern: GRAYLOGIC_EDGE_SECTION_KEY
// For example: GRAYLOGIC_EDGE_DEVICE_ID, GRAYLOGIC_EDGE_REDIS_ADDRESS
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
		Device: DeviceConfig{
			Name: "Gray Logic Edge",
		},
		Network: NetworkConfig{
			ProbeAddress: "1.1.1.1:53",
			PollInterval: 5,
			DialTimeout:  3,
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Timeout: 5,
			Database: DatabaseConfig{
				Path:        "./data/edge.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "graylogic",
			},
		},
		Broker: BrokerConfig{
			Auth:          "certificate",
			Encoding:      "hex",
			TLS:           true,
			QoS:           1,
			KeepAlive:     60,
			CredentialTTL: 3600,
			InFlightLimit: 8,
			ConnectWait:   30,
		},
		Orchestrator: OrchestratorConfig{
			QueueSize:         16,
			OutboxSize:        8,
			PollInterval:      100,
			RequestTimeout:    30,
			ShutdownTimeout:   5,
			SendBufferSize:    4096,
			ReceiveBufferSize: 4096,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				Multiplier:   2,
				Jitter:       0.2,
			},
		},
		Application: ApplicationConfig{
			Kind:            "dummy",
			PublishInterval: 60,
			QueueSize:       16,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 4096,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets belong here rather than in the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_EDGE_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	if v := os.Getenv("GRAYLOGIC_EDGE_NETWORK_PROBE"); v != "" {
		cfg.Network.ProbeAddress = v
	}

	// Store
	if v := os.Getenv("GRAYLOGIC_EDGE_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_STORE_SEED_FILE"); v != "" {
		cfg.Store.SeedFile = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_DATABASE_PATH"); v != "" {
		cfg.Store.Database.Path = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_REDIS_ADDRESS"); v != "" {
		cfg.Store.Redis.Address = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}

	// Broker
	if v := os.Getenv("GRAYLOGIC_EDGE_BROKER_AUTH"); v != "" {
		cfg.Broker.Auth = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_BROKER_TLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Broker.TLS = b
		}
	}

	if v := os.Getenv("GRAYLOGIC_EDGE_APPLICATION"); v != "" {
		cfg.Application.Kind = v
	}

	if v := os.Getenv("GRAYLOGIC_EDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_EDGE_API_TOKEN_HASH"); v != "" {
		cfg.API.TokenHash = v
	}

	if v := os.Getenv("GRAYLOGIC_EDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_EDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors. Every problem is reported,
// not only the first.
func (c *Config) Validate() error {
	var errs []string

	if c.Network.ProbeAddress == "" {
		errs = append(errs, "network.probe_address is required")
	}
	if c.Network.PollInterval < 1 {
		errs = append(errs, "network.poll_interval must be at least 1 second")
	}

	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Database.Path == "" {
			errs = append(errs, "store.database.path is required for the sqlite backend")
		}
	case "redis":
		if c.Store.Redis.Address == "" {
			errs = append(errs, "store.redis.address is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be sqlite or redis, got %q", c.Store.Backend))
	}

	switch c.Broker.Auth {
	case "certificate", "password", "azure-sas", "jwt":
	default:
		errs = append(errs, fmt.Sprintf("broker.auth must be certificate, password, azure-sas or jwt, got %q", c.Broker.Auth))
	}
	switch c.Broker.Encoding {
	case "hex", "base64":
	default:
		errs = append(errs, fmt.Sprintf("broker.encoding must be hex or base64, got %q", c.Broker.Encoding))
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, "broker.qos must be 0, 1, or 2")
	}
	if c.Broker.Auth == "certificate" && !c.Broker.TLS {
		errs = append(errs, "broker.tls cannot be disabled with certificate auth")
	}

	if c.Orchestrator.QueueSize < 1 {
		errs = append(errs, "orchestrator.queue_size must be positive")
	}
	if c.Orchestrator.PollInterval < 1 {
		errs = append(errs, "orchestrator.poll_interval_ms must be positive")
	}
	r := c.Orchestrator.Reconnect
	if r.MaxDelay < r.InitialDelay {
		errs = append(errs, "orchestrator.reconnect.max_delay must not be below initial_delay")
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		errs = append(errs, "orchestrator.reconnect.jitter must be between 0 and 1")
	}

	switch c.Application.Kind {
	case "dummy", "switch":
	default:
		errs = append(errs, fmt.Sprintf("application.kind must be dummy or switch, got %q", c.Application.Kind))
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CommandTopic is the topic the device subscribes to.
func (c *Config) CommandTopic() string {
	return "command/device/" + c.Device.ID
}

// TelemetryTopic is the topic the device publishes readings on.
func (c *Config) TelemetryTopic() string {
	return "sensor/device/" + c.Device.ID
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return seconds(c.API.Timeouts.Read)
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return seconds(c.API.Timeouts.Write)
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return seconds(c.API.Timeouts.Idle)
}

// GetPollInterval returns the orchestrator housekeeping interval.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Orchestrator.PollInterval) * time.Millisecond
}

// GetRequestTimeout returns how long a single transport request may take.
func (c *Config) GetRequestTimeout() time.Duration {
	return seconds(c.Orchestrator.RequestTimeout)
}

// GetShutdownTimeout bounds the graceful disconnect.
func (c *Config) GetShutdownTimeout() time.Duration {
	return seconds(c.Orchestrator.ShutdownTimeout)
}

// GetKeepAlive returns the MQTT keep-alive interval.
func (c *Config) GetKeepAlive() time.Duration {
	return seconds(c.Broker.KeepAlive)
}

// GetConnectTimeout bounds a single broker connect attempt.
func (c *Config) GetConnectTimeout() time.Duration {
	return seconds(c.Broker.ConnectWait)
}

// GetCredentialTTL returns the lifetime of derived broker passwords.
func (c *Config) GetCredentialTTL() time.Duration {
	return seconds(c.Broker.CredentialTTL)
}

// GetNetworkPollInterval returns how often reachability is probed.
func (c *Config) GetNetworkPollInterval() time.Duration {
	return seconds(c.Network.PollInterval)
}

// GetDialTimeout returns the reachability probe timeout.
func (c *Config) GetDialTimeout() time.Duration {
	return seconds(c.Network.DialTimeout)
}

// GetStoreTimeout bounds one configuration fetch against the store.
func (c *Config) GetStoreTimeout() time.Duration {
	return seconds(c.Store.Timeout)
}

// GetPublishInterval returns the dummy application's reading interval.
func (c *Config) GetPublishInterval() time.Duration {
	return seconds(c.Application.PublishInterval)
}

// GetInitialDelay returns the first non-immediate reconnect delay.
func (c *Config) GetInitialDelay() time.Duration {
	return seconds(c.Orchestrator.Reconnect.InitialDelay)
}

// GetMaxDelay caps the reconnect delay.
func (c *Config) GetMaxDelay() time.Duration {
	return seconds(c.Orchestrator.Reconnect.MaxDelay)
}
