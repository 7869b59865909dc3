package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// loadRedisFromEnv loads Redis configuration from environment variables
func loadRedisFromEnv(cfg *RedisConfig) {
	loadRedisStrings(cfg)
	loadRedisInts(cfg)
	loadRedisTimeouts(cfg)
}

func loadRedisStrings(cfg *RedisConfig) {
	if v := getEnvString("REDIS_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := getEnvString("REDIS_STREAM"); v != "" {
		cfg.Stream = v
	}
	if v := getEnvString("REDIS_CONSUMER"); v != "" {
		cfg.Consumer = v
	}
	if v := getEnvString("REDIS_KEY_PREFIX"); v != "" {
		cfg.KeyPrefix = v
	}
}

func loadRedisInts(cfg *RedisConfig) {
	if v := getEnvInt("REDIS_BATCH_SIZE"); v != 0 {
		cfg.BatchSize = v
	}
}

func loadRedisTimeouts(cfg *RedisConfig) {
	if v := getEnvDuration("REDIS_BLOCK_TIMEOUT"); v != 0 {
		cfg.BlockTimeout = v
	}
	if v := getEnvDuration("REDIS_CLAIM_IDLE"); v != 0 {
		cfg.ClaimIdle = v
	}
	if v := getEnvDuration("REDIS_CONSUMER_IDLE_TIMEOUT"); v != 0 {
		cfg.ConsumerIdleTimeout = v
	}
	if v := getEnvDuration("REDIS_CLEANUP_INTERVAL"); v != 0 {
		cfg.CleanupInterval = v
	}
	if v := getEnvDuration("REDIS_DIAL_TIMEOUT"); v != 0 {
		cfg.DialTimeout = v
	}
	if v := getEnvDuration("REDIS_READ_TIMEOUT"); v != 0 {
		cfg.ReadTimeout = v
	}
	if v := getEnvDuration("REDIS_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("REDIS_PING_TIMEOUT"); v != 0 {
		cfg.PingTimeout = v
	}
}

// loadMQTTFromEnv loads MQTT configuration from environment variables
func loadMQTTFromEnv(cfg *MQTTConfig) {
	loadMQTTStrings(cfg)
	loadMQTTInts(cfg)
	loadMQTTTimeouts(cfg)
	loadMQTTTLS(cfg)
	loadMQTTBools(cfg)
}

func loadMQTTStrings(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := getEnvString("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := getEnvString("MQTT_RESULT_TOPIC"); v != "" {
		cfg.ResultTopic = v
	}
	if v := getEnvString("MQTT_TX_TOPIC"); v != "" {
		cfg.TxTopic = v
	}
}

func loadMQTTInts(cfg *MQTTConfig) {
	if v, ok := getEnvIntOK("MQTT_QOS"); ok && v >= 0 && v <= 2 {
		cfg.QoS = byte(v) // #nosec G115 - validated range 0-2
	}
	if v := getEnvInt("MQTT_POOL_SIZE"); v != 0 {
		cfg.PoolSize = v
	}
	if v := getEnvInt("MQTT_DISCONNECT_TIMEOUT"); v > 0 {
		cfg.DisconnectTimeout = uint(v) // #nosec G115 - checked positive
	}
}

func loadMQTTTimeouts(cfg *MQTTConfig) {
	if v := getEnvDuration("MQTT_CONNECT_TIMEOUT"); v != 0 {
		cfg.ConnectTimeout = v
	}
	if v := getEnvDuration("MQTT_WRITE_TIMEOUT"); v != 0 {
		cfg.WriteTimeout = v
	}
	if v := getEnvDuration("MQTT_MAX_RECONNECT_INTERVAL"); v != 0 {
		cfg.MaxReconnectInterval = v
	}
	if v := getEnvDuration("MQTT_SUBSCRIBE_TIMEOUT"); v != 0 {
		cfg.SubscribeTimeout = v
	}
}

func loadMQTTTLS(cfg *MQTTConfig) {
	if v := getEnvString("MQTT_CA_CERT"); v != "" {
		cfg.CACert = v
	}
	if v := getEnvString("MQTT_CLIENT_CERT"); v != "" {
		cfg.ClientCert = v
	}
	if v := getEnvString("MQTT_CLIENT_KEY"); v != "" {
		cfg.ClientKey = v
	}
}

func loadMQTTBools(cfg *MQTTConfig) {
	if v := getEnvBool("MQTT_TLS_ENABLED"); v {
		cfg.TLSEnabled = v
	}
	if v := getEnvBool("MQTT_TLS_INSECURE_SKIP"); v {
		cfg.InsecureSkip = v
	}
	if v := getEnvBool("MQTT_USE_CERT_CN_PREFIX"); v {
		cfg.UseCertCNPrefix = v
	}
}

// loadPipelineFromEnv loads Pipeline configuration from environment variables
func loadPipelineFromEnv(cfg *PipelineConfig) {
	if v := getEnvInt("PIPELINE_BUFFER_CAPACITY"); v != 0 {
		cfg.BufferCapacity = v
	}
	if v := getEnvDuration("PIPELINE_SHUTDOWN_TIMEOUT"); v != 0 {
		cfg.ShutdownTimeout = v
	}
	if v := getEnvDuration("PIPELINE_ERROR_BACKOFF"); v != 0 {
		cfg.ErrorBackoff = v
	}
	if v := getEnvDuration("PIPELINE_ACK_TIMEOUT"); v != 0 {
		cfg.AckTimeout = v
	}
	if v := getEnvInt("PIPELINE_EXECUTE_WORKERS"); v != 0 {
		cfg.ExecuteWorkers = v
	}
	if v := getEnvInt("PIPELINE_DEDUP_SIZE"); v != 0 {
		cfg.DedupSize = v
	}
}

// loadFeedFromEnv loads the consumer instance configuration from environment variables
func loadFeedFromEnv(cfg *FeedConfig) error {
	if v := getEnvString("FEED_PROGRAM_NAME"); v != "" {
		cfg.ProgramName = v
	}
	if v := getEnvString("FEED_PROGRAM_ID"); v != "" {
		cfg.ProgramID = v
	}
	if v, ok := getEnvIntOK("FEED_ID"); ok && v >= 0 {
		cfg.FeedID = uint32(v) // #nosec G115 - feed ids are small
	}
	if v := getEnvString("FEED_CHANNEL"); v != "" {
		cfg.Channel = v
	}
	if v := getEnvString("FEED_SCHEME"); v != "" {
		cfg.Scheme = v
	}
	if v := getEnvList("FEED_TRUSTED_SIGNERS"); len(v) > 0 {
		cfg.TrustedSigners = v
	}
	if v := getEnvString("FEED_TRUST_EXPIRES_AT"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("FEED_TRUST_EXPIRES_AT: %w", err)
		}
		cfg.TrustExpiresAt = t
	}
	if v, ok := getEnvIntOK("FEED_PRICE_EXPONENT"); ok {
		cfg.PriceExponent = v
	}
	return nil
}

// loadStoreFromEnv loads record store configuration from environment variables
func loadStoreFromEnv(cfg *StoreConfig) {
	if v := getEnvString("STORE_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := getEnvString("STORE_DIR"); v != "" {
		cfg.Dir = v
	}
	if v := getEnvString("STORE_NAME"); v != "" {
		cfg.Name = v
	}
}

// loadMetricsFromEnv loads metrics configuration; METRICS_ADDRESS set to
// an empty value disables the endpoint
func loadMetricsFromEnv(cfg *MetricsConfig) {
	if v, ok := os.LookupEnv("METRICS_ADDRESS"); ok {
		cfg.Address = v
	}
	if v := getEnvString("METRICS_PATH"); v != "" {
		cfg.Path = v
	}
}

// Helper functions for reading environment variables

func getEnvString(key string) string {
	return os.Getenv(key)
}

func getEnvInt(key string) int {
	v, _ := getEnvIntOK(key)
	return v
}

func getEnvIntOK(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return intValue, true
}

func getEnvDuration(key string) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return duration
}

func getEnvBool(key string) bool {
	value := os.Getenv(key)
	return value == "true"
}

func getEnvList(key string) []string {
	return splitList(os.Getenv(key))
}

// splitList splits a comma separated list, dropping empty items
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
