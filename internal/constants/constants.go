package constants

import "time"

// Status Server Constants
const (
	// DefaultAPIHost is the default status server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default status server port
	DefaultAPIPort = 8090

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultMaxHeaderBytes is the default maximum size of request headers
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultWebSocketPath is the path the action stream is served on
	DefaultWebSocketPath = "/ws"
)

// Chain Constants
const (
	// DefaultSourceChainID is the default source chain (Ethereum Sepolia)
	DefaultSourceChainID = 11155111

	// DefaultDestinationChainID is the default destination chain (Polygon Mumbai)
	DefaultDestinationChainID = 80001

	// DefaultBridgeContract is the bridge contract watched on the source chain
	DefaultBridgeContract = "0x7b79995e5f793A07Bc00c21412e50Eaae098E7f9"

	// DefaultEventName is the bridge event relayed by the listener
	DefaultEventName = "DepositInitiated"
)

// Listener Constants
const (
	// DefaultChunkSize is the maximum number of blocks queried per eth_getLogs request
	DefaultChunkSize = 100

	// DefaultPollInterval is the pause between polling cycles
	DefaultPollInterval = 15 * time.Second

	// DefaultMaxRetries is the number of attempts per window before it is reported as a fault
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the delay between window retries
	DefaultRetryDelay = 1 * time.Second
)

// RPC Constants
const (
	// DefaultRPCTimeout is the default timeout for a single RPC call
	DefaultRPCTimeout = 30 * time.Second

	// DefaultRPCRateLimit is the default number of RPC requests per second
	DefaultRPCRateLimit = 10.0

	// DefaultRPCRateBurst is the default RPC request burst
	DefaultRPCRateBurst = 20
)

// Checkpoint Constants
const (
	// DefaultCheckpointBackend is the default checkpoint store
	DefaultCheckpointBackend = "file"

	// DefaultCheckpointPath is the default checkpoint file location
	DefaultCheckpointPath = "listener_state.json"

	// DefaultCheckpointCacheSize is the pebble cache size in MB for the pebble backend
	DefaultCheckpointCacheSize = 8 // MB
)

// Sink Constants
const (
	// DefaultSinkType is the default action sink
	DefaultSinkType = "log"

	// DefaultKafkaTopic is the default topic actions are published to
	DefaultKafkaTopic = "bridge-actions"

	// DefaultKafkaBatchTimeout bounds how long kafka-go buffers a message
	DefaultKafkaBatchTimeout = 10 * time.Millisecond

	// DefaultRedisChannel is the default Pub/Sub channel actions are published to
	DefaultRedisChannel = "bridge:actions"

	// DefaultWebSocketBuffer is the broadcast buffer of the websocket hub
	DefaultWebSocketBuffer = 256
)

// Metrics Constants
const (
	// MetricsNamespace is the Prometheus namespace of every listener metric
	MetricsNamespace = "bridge"

	// MetricsSubsystem is the Prometheus subsystem of the listener loop
	MetricsSubsystem = "listener"
)
