package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/bridge-listener/internal/constants"
)

// Config holds all configuration for the bridge listener
type Config struct {
	Source      ChainConfig      `yaml:"source"`
	Destination ChainConfig      `yaml:"destination"`
	Bridge      BridgeConfig     `yaml:"bridge"`
	Listener    ListenerConfig   `yaml:"listener"`
	Checkpoint  CheckpointConfig `yaml:"checkpoint"`
	Sink        SinkConfig       `yaml:"sink"`
	API         APIConfig        `yaml:"api"`
	Log         LogConfig        `yaml:"log"`
}

// ChainConfig identifies one side of the bridge
type ChainConfig struct {
	// Endpoint is the HTTP(S) or WS JSON-RPC endpoint URL
	Endpoint string `yaml:"endpoint"`
	// ChainID is the numeric chain ID the endpoint must report
	ChainID uint64 `yaml:"chain_id"`
	// Timeout bounds a single RPC call
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit is the number of requests per second (0 disables limiting)
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the maximum request burst
	RateBurst int `yaml:"rate_burst"`
}

// BridgeConfig describes the watched contract
type BridgeConfig struct {
	// Contract is the bridge contract address on the source chain
	Contract string `yaml:"contract"`
	// EventName selects the event from ABI
	EventName string `yaml:"event_name"`
	// ABI is an optional contract ABI JSON; the built-in DepositInitiated ABI is used when empty
	ABI string `yaml:"abi,omitempty"`
}

// ListenerConfig holds polling loop configuration
type ListenerConfig struct {
	// ChunkSize is the maximum width of a fetched block window
	ChunkSize uint64 `yaml:"chunk_size"`
	// PollInterval is the pause between polling cycles
	PollInterval time.Duration `yaml:"poll_interval"`
	// StartHeight seeds the checkpoint when none is stored (0 means chain head)
	StartHeight uint64 `yaml:"start_height"`
	// MaxRetries is the number of attempts per window before reporting a fault
	MaxRetries int `yaml:"max_retries"`
	// RetryDelay is the delay between window retries
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// CheckpointConfig selects the checkpoint store
type CheckpointConfig struct {
	// Backend is "file", "pebble" or "memory"
	Backend string `yaml:"backend"`
	// Path is the checkpoint file, or the pebble directory
	Path string `yaml:"path"`
}

// SinkConfig selects where dispatched actions go
type SinkConfig struct {
	// Types lists the enabled sinks: "log", "kafka", "redis", "websocket"
	Types []string    `yaml:"types"`
	Kafka KafkaConfig `yaml:"kafka"`
	Redis RedisConfig `yaml:"redis"`
}

// KafkaConfig holds Kafka sink settings
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// RedisConfig holds Redis sink settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// APIConfig holds status server configuration
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Address returns the status server listen address
func (c *APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HasSink reports whether the named sink is enabled
func (c *SinkConfig) HasSink(name string) bool {
	for _, t := range c.Types {
		if t == name {
			return true
		}
	}
	return false
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	// Chain defaults
	if c.Source.ChainID == 0 {
		c.Source.ChainID = constants.DefaultSourceChainID
	}
	if c.Destination.ChainID == 0 {
		c.Destination.ChainID = constants.DefaultDestinationChainID
	}
	for _, chain := range []*ChainConfig{&c.Source, &c.Destination} {
		if chain.Timeout == 0 {
			chain.Timeout = constants.DefaultRPCTimeout
		}
		if chain.RateBurst == 0 {
			chain.RateBurst = constants.DefaultRPCRateBurst
		}
	}
	if c.Source.RateLimit == 0 {
		c.Source.RateLimit = constants.DefaultRPCRateLimit
	}

	// Bridge defaults
	if c.Bridge.Contract == "" {
		c.Bridge.Contract = constants.DefaultBridgeContract
	}
	if c.Bridge.EventName == "" {
		c.Bridge.EventName = constants.DefaultEventName
	}

	// Listener defaults
	if c.Listener.ChunkSize == 0 {
		c.Listener.ChunkSize = constants.DefaultChunkSize
	}
	if c.Listener.PollInterval == 0 {
		c.Listener.PollInterval = constants.DefaultPollInterval
	}
	if c.Listener.MaxRetries == 0 {
		c.Listener.MaxRetries = constants.DefaultMaxRetries
	}
	if c.Listener.RetryDelay == 0 {
		c.Listener.RetryDelay = constants.DefaultRetryDelay
	}

	// Checkpoint defaults
	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = constants.DefaultCheckpointBackend
	}
	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = constants.DefaultCheckpointPath
	}

	// Sink defaults
	if len(c.Sink.Types) == 0 {
		c.Sink.Types = []string{constants.DefaultSinkType}
	}
	if c.Sink.Kafka.Topic == "" {
		c.Sink.Kafka.Topic = constants.DefaultKafkaTopic
	}
	if c.Sink.Kafka.BatchTimeout == 0 {
		c.Sink.Kafka.BatchTimeout = constants.DefaultKafkaBatchTimeout
	}
	if c.Sink.Redis.Channel == "" {
		c.Sink.Redis.Channel = constants.DefaultRedisChannel
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Source chain
	if endpoint := os.Getenv("BRIDGE_SOURCE_RPC"); endpoint != "" {
		c.Source.Endpoint = endpoint
	}
	if chainID := os.Getenv("BRIDGE_SOURCE_CHAIN_ID"); chainID != "" {
		val, err := strconv.ParseUint(chainID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_SOURCE_CHAIN_ID: %w", err)
		}
		c.Source.ChainID = val
	}

	// Destination chain
	if endpoint := os.Getenv("BRIDGE_DESTINATION_RPC"); endpoint != "" {
		c.Destination.Endpoint = endpoint
	}
	if chainID := os.Getenv("BRIDGE_DESTINATION_CHAIN_ID"); chainID != "" {
		val, err := strconv.ParseUint(chainID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_DESTINATION_CHAIN_ID: %w", err)
		}
		c.Destination.ChainID = val
	}

	// Bridge contract
	if contract := os.Getenv("BRIDGE_CONTRACT"); contract != "" {
		c.Bridge.Contract = contract
	}

	// Listener
	if chunkSize := os.Getenv("BRIDGE_CHUNK_SIZE"); chunkSize != "" {
		val, err := strconv.ParseUint(chunkSize, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_CHUNK_SIZE: %w", err)
		}
		c.Listener.ChunkSize = val
	}
	if interval := os.Getenv("BRIDGE_POLL_INTERVAL"); interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_POLL_INTERVAL: %w", err)
		}
		c.Listener.PollInterval = duration
	}
	if startHeight := os.Getenv("BRIDGE_START_HEIGHT"); startHeight != "" {
		val, err := strconv.ParseUint(startHeight, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_START_HEIGHT: %w", err)
		}
		c.Listener.StartHeight = val
	}

	// Checkpoint
	if backend := os.Getenv("BRIDGE_CHECKPOINT_BACKEND"); backend != "" {
		c.Checkpoint.Backend = backend
	}
	if path := os.Getenv("BRIDGE_CHECKPOINT_PATH"); path != "" {
		c.Checkpoint.Path = path
	}

	// Sinks
	if sinks := os.Getenv("BRIDGE_SINKS"); sinks != "" {
		c.Sink.Types = splitList(sinks)
	}
	if brokers := os.Getenv("BRIDGE_KAFKA_BROKERS"); brokers != "" {
		c.Sink.Kafka.Brokers = splitList(brokers)
	}
	if topic := os.Getenv("BRIDGE_KAFKA_TOPIC"); topic != "" {
		c.Sink.Kafka.Topic = topic
	}
	if addr := os.Getenv("BRIDGE_REDIS_ADDR"); addr != "" {
		c.Sink.Redis.Addr = addr
	}
	if password := os.Getenv("BRIDGE_REDIS_PASSWORD"); password != "" {
		c.Sink.Redis.Password = password
	}

	// API
	if enabled := os.Getenv("BRIDGE_API_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_API_ENABLED: %w", err)
		}
		c.API.Enabled = val
	}
	if port := os.Getenv("BRIDGE_API_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid BRIDGE_API_PORT: %w", err)
		}
		c.API.Port = val
	}

	// Log
	if level := os.Getenv("BRIDGE_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("BRIDGE_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Source.Endpoint == "" {
		return fmt.Errorf("source RPC endpoint is required")
	}
	if c.Destination.Endpoint == "" {
		return fmt.Errorf("destination RPC endpoint is required")
	}
	if c.Destination.ChainID == 0 {
		return fmt.Errorf("destination chain ID is required")
	}
	if c.Source.Timeout <= 0 || c.Destination.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.Source.RateLimit < 0 {
		return fmt.Errorf("RPC rate limit cannot be negative")
	}

	if !common.IsHexAddress(c.Bridge.Contract) {
		return fmt.Errorf("invalid bridge contract address %q", c.Bridge.Contract)
	}
	if c.Bridge.EventName == "" {
		return fmt.Errorf("bridge event name is required")
	}

	if c.Listener.ChunkSize == 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.Listener.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Listener.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}

	switch c.Checkpoint.Backend {
	case "file", "pebble", "memory":
	default:
		return fmt.Errorf("invalid checkpoint backend %q, must be one of: file, pebble, memory", c.Checkpoint.Backend)
	}
	if c.Checkpoint.Backend != "memory" && c.Checkpoint.Path == "" {
		return fmt.Errorf("checkpoint path is required")
	}

	validSinks := map[string]bool{
		"log":       true,
		"kafka":     true,
		"redis":     true,
		"websocket": true,
	}
	for _, t := range c.Sink.Types {
		if !validSinks[t] {
			return fmt.Errorf("invalid sink type %q, must be one of: log, kafka, redis, websocket", t)
		}
	}
	if c.Sink.HasSink("kafka") && len(c.Sink.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka sink enabled but no brokers configured")
	}
	if c.Sink.HasSink("redis") && c.Sink.Redis.Addr == "" {
		return fmt.Errorf("redis sink enabled but no address configured")
	}
	if c.Sink.HasSink("websocket") && !c.API.Enabled {
		return fmt.Errorf("websocket sink requires the API server to be enabled")
	}

	if c.API.Enabled && (c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort) {
		return fmt.Errorf("invalid API port %d", c.API.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	return nil
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Load from environment variables (override file)
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
