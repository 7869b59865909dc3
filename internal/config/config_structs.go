// Package config provides configuration loading and validation from environment variables and command line flags.
package config

import "time"

// Config holds the complete configuration
type Config struct {
	Redis    RedisConfig
	MQTT     MQTTConfig
	Pipeline PipelineConfig
	Feed     FeedConfig
	Store    StoreConfig
	Metrics  MetricsConfig
}

// RedisConfig holds the transaction stream consumer and record store settings
type RedisConfig struct {
	Address             string
	Stream              string
	Consumer            string
	KeyPrefix           string
	BatchSize           int
	BlockTimeout        time.Duration
	ClaimIdle           time.Duration
	ConsumerIdleTimeout time.Duration
	CleanupInterval     time.Duration
	DialTimeout         time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	PingTimeout         time.Duration
}

// MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Broker               string
	ClientID             string
	ResultTopic          string
	TxTopic              string // Empty disables MQTT transaction intake
	QoS                  byte
	ConnectTimeout       time.Duration
	WriteTimeout         time.Duration
	PoolSize             int
	MaxReconnectInterval time.Duration
	SubscribeTimeout     time.Duration
	DisconnectTimeout    uint // Milliseconds for graceful disconnect
	// TLS Configuration
	TLSEnabled      bool
	CACert          string
	ClientCert      string
	ClientKey       string
	InsecureSkip    bool
	UseCertCNPrefix bool // If true, prefix topics with cert CN for ACL constraints
}

// PipelineConfig holds pipeline orchestration settings
type PipelineConfig struct {
	BufferCapacity  int
	ShutdownTimeout time.Duration
	ErrorBackoff    time.Duration
	AckTimeout      time.Duration // Timeout for stream ACK operations
	ExecuteWorkers  int
	DedupSize       int // Recently executed transaction ids remembered
}

// FeedConfig describes the consumer instance hosted by the daemon
type FeedConfig struct {
	ProgramName    string
	ProgramID      string // Hex; derived from ProgramName when empty
	FeedID         uint32
	Channel        string
	Scheme         string
	TrustedSigners []string // Hex ed25519 keys or secp256k1 addresses
	TrustExpiresAt time.Time
	PriceExponent  int
}

// StoreConfig selects the record store backend
type StoreConfig struct {
	Backend string // redis, leveldb or memory
	Dir     string
	Name    string
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Address string // Empty disables the endpoint
	Path    string
}

// Store backends
const (
	StoreRedis   = "redis"
	StoreLevelDB = "leveldb"
	StoreMemory  = "memory"
)
