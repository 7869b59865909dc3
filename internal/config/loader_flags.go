package config

import (
	"flag"
	"time"
)

// Command line flags (have precedence over environment variables)
var (
	// Redis flags
	flagRedisAddress         *string
	flagRedisStream          *string
	flagRedisConsumer        *string
	flagRedisKeyPrefix       *string
	flagRedisBatchSize       *int
	flagRedisBlockTimeout    *time.Duration
	flagRedisClaimIdle       *time.Duration
	flagRedisConsumerIdle    *time.Duration
	flagRedisCleanupInterval *time.Duration
	flagRedisDialTimeout     *time.Duration
	flagRedisReadTimeout     *time.Duration
	flagRedisWriteTimeout    *time.Duration
	flagRedisPingTimeout     *time.Duration

	// MQTT flags
	flagMQTTBroker            *string
	flagMQTTClientID          *string
	flagMQTTResultTopic       *string
	flagMQTTTxTopic           *string
	flagMQTTQoS               *int
	flagMQTTConnectTimeout    *time.Duration
	flagMQTTWriteTimeout      *time.Duration
	flagMQTTPoolSize          *int
	flagMQTTMaxReconnect      *time.Duration
	flagMQTTSubscribeTimeout  *time.Duration
	flagMQTTDisconnectTimeout *int
	flagMQTTTLSEnabled        *bool
	flagMQTTCACert            *string
	flagMQTTClientCert        *string
	flagMQTTClientKey         *string
	flagMQTTTLSInsecureSkip   *bool
	flagMQTTUseCertCNPrefix   *bool

	// Pipeline flags
	flagPipelineBufferCapacity  *int
	flagPipelineShutdownTimeout *time.Duration
	flagPipelineErrorBackoff    *time.Duration
	flagPipelineAckTimeout      *time.Duration
	flagPipelineExecuteWorkers  *int
	flagPipelineDedupSize       *int

	// Feed flags
	flagFeedProgramName    *string
	flagFeedProgramID      *string
	flagFeedID             *int
	flagFeedChannel        *string
	flagFeedScheme         *string
	flagFeedTrustedSigners *string
	flagFeedPriceExponent  *int

	// Store flags
	flagStoreBackend *string
	flagStoreDir     *string
	flagStoreName    *string

	// Metrics flags
	flagMetricsAddress *string
	flagMetricsPath    *string
)

func init() {
	registerFlags()
}

// registerFlags defines every flag on flag.CommandLine
func registerFlags() {
	flagRedisAddress = flag.String("redis-address", "", "Redis address")
	flagRedisStream = flag.String("redis-stream", "", "Redis transaction stream name")
	flagRedisConsumer = flag.String("redis-consumer", "", "Redis consumer name")
	flagRedisKeyPrefix = flag.String("redis-key-prefix", "", "Redis key prefix for consumer records")
	flagRedisBatchSize = flag.Int("redis-batch-size", 0, "Redis batch size")
	flagRedisBlockTimeout = flag.Duration("redis-block-timeout", 0, "Redis block timeout")
	flagRedisClaimIdle = flag.Duration("redis-claim-idle", 0, "Redis claim idle time")
	flagRedisConsumerIdle = flag.Duration("redis-consumer-idle-timeout", 0, "Redis consumer idle timeout")
	flagRedisCleanupInterval = flag.Duration("redis-cleanup-interval", 0, "Redis cleanup interval")
	flagRedisDialTimeout = flag.Duration("redis-dial-timeout", 0, "Redis dial timeout")
	flagRedisReadTimeout = flag.Duration("redis-read-timeout", 0, "Redis read timeout")
	flagRedisWriteTimeout = flag.Duration("redis-write-timeout", 0, "Redis write timeout")
	flagRedisPingTimeout = flag.Duration("redis-ping-timeout", 0, "Redis ping timeout")

	flagMQTTBroker = flag.String("mqtt-broker", "", "MQTT broker URL")
	flagMQTTClientID = flag.String("mqtt-client-id", "", "MQTT client ID")
	flagMQTTResultTopic = flag.String("mqtt-result-topic", "", "MQTT topic receiving execution results")
	flagMQTTTxTopic = flag.String("mqtt-tx-topic", "", "MQTT topic carrying transactions (empty disables)")
	flagMQTTQoS = flag.Int("mqtt-qos", -1, "MQTT QoS (0, 1, or 2)")
	flagMQTTConnectTimeout = flag.Duration("mqtt-connect-timeout", 0, "MQTT connect timeout")
	flagMQTTWriteTimeout = flag.Duration("mqtt-write-timeout", 0, "MQTT write timeout")
	flagMQTTPoolSize = flag.Int("mqtt-pool-size", 0, "MQTT connection pool size")
	flagMQTTMaxReconnect = flag.Duration("mqtt-max-reconnect-interval", 0, "MQTT max reconnect interval")
	flagMQTTSubscribeTimeout = flag.Duration("mqtt-subscribe-timeout", 0, "MQTT subscribe timeout")
	flagMQTTDisconnectTimeout = flag.Int("mqtt-disconnect-timeout", 0, "MQTT disconnect timeout (ms)")
	flagMQTTTLSEnabled = flag.Bool("mqtt-tls-enabled", false, "Enable MQTT TLS")
	flagMQTTCACert = flag.String("mqtt-ca-cert", "", "MQTT CA certificate path")
	flagMQTTClientCert = flag.String("mqtt-client-cert", "", "MQTT client certificate path")
	flagMQTTClientKey = flag.String("mqtt-client-key", "", "MQTT client key path")
	flagMQTTTLSInsecureSkip = flag.Bool("mqtt-tls-insecure-skip", false, "Skip MQTT TLS verification")
	flagMQTTUseCertCNPrefix = flag.Bool("mqtt-use-cert-cn-prefix", false, "Prefix topics with client cert CN")

	flagPipelineBufferCapacity = flag.Int("pipeline-buffer-capacity", 0, "Pipeline buffer capacity")
	flagPipelineShutdownTimeout = flag.Duration("pipeline-shutdown-timeout", 0, "Pipeline shutdown timeout")
	flagPipelineErrorBackoff = flag.Duration("pipeline-error-backoff", 0, "Pipeline error backoff")
	flagPipelineAckTimeout = flag.Duration("pipeline-ack-timeout", 0, "Pipeline stream ACK timeout")
	flagPipelineExecuteWorkers = flag.Int("pipeline-execute-workers", 0, "Number of concurrent execute workers")
	flagPipelineDedupSize = flag.Int("pipeline-dedup-size", 0, "Number of executed transaction ids remembered")

	flagFeedProgramName = flag.String("feed-program-name", "", "Consumer program name")
	flagFeedProgramID = flag.String("feed-program-id", "", "Consumer program id (hex)")
	flagFeedID = flag.Int("feed-id", -1, "Tracked feed id")
	flagFeedChannel = flag.String("feed-channel", "", "Expected channel (real_time, fixed_rate@50ms, fixed_rate@200ms)")
	flagFeedScheme = flag.String("feed-scheme", "", "Signature scheme (ed25519 or ecdsa)")
	flagFeedTrustedSigners = flag.String("feed-trusted-signers", "", "Comma separated trusted signer keys or addresses (hex)")
	flagFeedPriceExponent = flag.Int("feed-price-exponent", 1, "Decimal exponent used to render prices")

	flagStoreBackend = flag.String("store-backend", "", "Record store backend (redis, leveldb, memory)")
	flagStoreDir = flag.String("store-dir", "", "Directory of the leveldb record store")
	flagStoreName = flag.String("store-name", "", "Name of the leveldb record store")

	flagMetricsAddress = flag.String("metrics-address", "", "Prometheus listen address")
	flagMetricsPath = flag.String("metrics-path", "", "Prometheus endpoint path")
}

// applyRedisFlags applies command line flags to Redis configuration
func applyRedisFlags(cfg *RedisConfig) {
	applyRedisFlagStrings(cfg)
	applyRedisFlagInts(cfg)
	applyRedisFlagTimeouts(cfg)
}

func applyRedisFlagStrings(cfg *RedisConfig) {
	if *flagRedisAddress != "" {
		cfg.Address = *flagRedisAddress
	}
	if *flagRedisStream != "" {
		cfg.Stream = *flagRedisStream
	}
	if *flagRedisConsumer != "" {
		cfg.Consumer = *flagRedisConsumer
	}
	if *flagRedisKeyPrefix != "" {
		cfg.KeyPrefix = *flagRedisKeyPrefix
	}
}

func applyRedisFlagInts(cfg *RedisConfig) {
	if *flagRedisBatchSize != 0 {
		cfg.BatchSize = *flagRedisBatchSize
	}
}

func applyRedisFlagTimeouts(cfg *RedisConfig) {
	if *flagRedisBlockTimeout != 0 {
		cfg.BlockTimeout = *flagRedisBlockTimeout
	}
	if *flagRedisClaimIdle != 0 {
		cfg.ClaimIdle = *flagRedisClaimIdle
	}
	if *flagRedisConsumerIdle != 0 {
		cfg.ConsumerIdleTimeout = *flagRedisConsumerIdle
	}
	if *flagRedisCleanupInterval != 0 {
		cfg.CleanupInterval = *flagRedisCleanupInterval
	}
	if *flagRedisDialTimeout != 0 {
		cfg.DialTimeout = *flagRedisDialTimeout
	}
	if *flagRedisReadTimeout != 0 {
		cfg.ReadTimeout = *flagRedisReadTimeout
	}
	if *flagRedisWriteTimeout != 0 {
		cfg.WriteTimeout = *flagRedisWriteTimeout
	}
	if *flagRedisPingTimeout != 0 {
		cfg.PingTimeout = *flagRedisPingTimeout
	}
}

// applyMQTTFlags applies command line flags to MQTT configuration
func applyMQTTFlags(cfg *MQTTConfig) {
	applyMQTTFlagStrings(cfg)
	applyMQTTFlagInts(cfg)
	applyMQTTFlagTimeouts(cfg)
	applyMQTTFlagTLS(cfg)
	applyMQTTFlagBools(cfg)
}

func applyMQTTFlagStrings(cfg *MQTTConfig) {
	if *flagMQTTBroker != "" {
		cfg.Broker = *flagMQTTBroker
	}
	if *flagMQTTClientID != "" {
		cfg.ClientID = *flagMQTTClientID
	}
	if *flagMQTTResultTopic != "" {
		cfg.ResultTopic = *flagMQTTResultTopic
	}
	if *flagMQTTTxTopic != "" {
		cfg.TxTopic = *flagMQTTTxTopic
	}
}

func applyMQTTFlagInts(cfg *MQTTConfig) {
	if *flagMQTTQoS >= 0 && *flagMQTTQoS <= 2 {
		cfg.QoS = byte(*flagMQTTQoS) // #nosec G115 - validated range 0-2
	}
	if *flagMQTTPoolSize != 0 {
		cfg.PoolSize = *flagMQTTPoolSize
	}
	if *flagMQTTDisconnectTimeout > 0 {
		cfg.DisconnectTimeout = uint(*flagMQTTDisconnectTimeout) // #nosec G115 - checked positive
	}
}

func applyMQTTFlagTimeouts(cfg *MQTTConfig) {
	if *flagMQTTConnectTimeout != 0 {
		cfg.ConnectTimeout = *flagMQTTConnectTimeout
	}
	if *flagMQTTWriteTimeout != 0 {
		cfg.WriteTimeout = *flagMQTTWriteTimeout
	}
	if *flagMQTTMaxReconnect != 0 {
		cfg.MaxReconnectInterval = *flagMQTTMaxReconnect
	}
	if *flagMQTTSubscribeTimeout != 0 {
		cfg.SubscribeTimeout = *flagMQTTSubscribeTimeout
	}
}

func applyMQTTFlagTLS(cfg *MQTTConfig) {
	if *flagMQTTCACert != "" {
		cfg.CACert = *flagMQTTCACert
	}
	if *flagMQTTClientCert != "" {
		cfg.ClientCert = *flagMQTTClientCert
	}
	if *flagMQTTClientKey != "" {
		cfg.ClientKey = *flagMQTTClientKey
	}
}

func applyMQTTFlagBools(cfg *MQTTConfig) {
	// Handle bool flags - check if explicitly set
	if isFlagSet("mqtt-tls-enabled") {
		cfg.TLSEnabled = *flagMQTTTLSEnabled
	}
	if isFlagSet("mqtt-tls-insecure-skip") {
		cfg.InsecureSkip = *flagMQTTTLSInsecureSkip
	}
	if isFlagSet("mqtt-use-cert-cn-prefix") {
		cfg.UseCertCNPrefix = *flagMQTTUseCertCNPrefix
	}
}

// applyPipelineFlags applies command line flags to Pipeline configuration
func applyPipelineFlags(cfg *PipelineConfig) {
	if *flagPipelineBufferCapacity != 0 {
		cfg.BufferCapacity = *flagPipelineBufferCapacity
	}
	if *flagPipelineShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *flagPipelineShutdownTimeout
	}
	if *flagPipelineErrorBackoff != 0 {
		cfg.ErrorBackoff = *flagPipelineErrorBackoff
	}
	if *flagPipelineAckTimeout != 0 {
		cfg.AckTimeout = *flagPipelineAckTimeout
	}
	if *flagPipelineExecuteWorkers != 0 {
		cfg.ExecuteWorkers = *flagPipelineExecuteWorkers
	}
	if *flagPipelineDedupSize != 0 {
		cfg.DedupSize = *flagPipelineDedupSize
	}
}

// applyFeedFlags applies command line flags to the consumer instance configuration
func applyFeedFlags(cfg *FeedConfig) {
	if *flagFeedProgramName != "" {
		cfg.ProgramName = *flagFeedProgramName
	}
	if *flagFeedProgramID != "" {
		cfg.ProgramID = *flagFeedProgramID
	}
	if *flagFeedID >= 0 {
		cfg.FeedID = uint32(*flagFeedID) // #nosec G115 - feed ids are small
	}
	if *flagFeedChannel != "" {
		cfg.Channel = *flagFeedChannel
	}
	if *flagFeedScheme != "" {
		cfg.Scheme = *flagFeedScheme
	}
	if v := splitList(*flagFeedTrustedSigners); len(v) > 0 {
		cfg.TrustedSigners = v
	}
	if isFlagSet("feed-price-exponent") {
		cfg.PriceExponent = *flagFeedPriceExponent
	}
}

// applyStoreFlags applies command line flags to the record store configuration
func applyStoreFlags(cfg *StoreConfig) {
	if *flagStoreBackend != "" {
		cfg.Backend = *flagStoreBackend
	}
	if *flagStoreDir != "" {
		cfg.Dir = *flagStoreDir
	}
	if *flagStoreName != "" {
		cfg.Name = *flagStoreName
	}
}

// applyMetricsFlags applies command line flags to metrics configuration
func applyMetricsFlags(cfg *MetricsConfig) {
	if isFlagSet("metrics-address") {
		cfg.Address = *flagMetricsAddress
	}
	if *flagMetricsPath != "" {
		cfg.Path = *flagMetricsPath
	}
}

// isFlagSet checks if a flag was explicitly set on the command line
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
