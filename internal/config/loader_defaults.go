package config

import "time"

// defaultRedisConfig returns the default Redis configuration
func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:             "localhost:6379",
		Stream:              "pricefeed-transactions",
		Consumer:            "consumer-1",
		KeyPrefix:           "pricefeed:state:",
		BatchSize:           100,
		BlockTimeout:        5 * time.Second,
		ClaimIdle:           30 * time.Second,
		ConsumerIdleTimeout: 5 * time.Minute,
		CleanupInterval:     1 * time.Minute,
		DialTimeout:         10 * time.Second,
		ReadTimeout:         10 * time.Second,
		WriteTimeout:        5 * time.Second,
		PingTimeout:         5 * time.Second,
	}
}

// defaultMQTTConfig returns the default MQTT configuration
func defaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:               "tcp://localhost:1883",
		ClientID:             "pricefeed-consumer",
		ResultTopic:          "pricefeed/results",
		TxTopic:              "",
		QoS:                  1,
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         30 * time.Second,
		PoolSize:             4,
		MaxReconnectInterval: 10 * time.Second,
		SubscribeTimeout:     10 * time.Second,
		DisconnectTimeout:    1000,
	}
}

// defaultPipelineConfig returns the default pipeline configuration
func defaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BufferCapacity:  1000,
		ShutdownTimeout: 30 * time.Second,
		ErrorBackoff:    1 * time.Second,
		AckTimeout:      5 * time.Second,
		ExecuteWorkers:  1, // one worker keeps stream order
		DedupSize:       4096,
	}
}

// defaultFeedConfig returns the default consumer instance configuration
func defaultFeedConfig() FeedConfig {
	return FeedConfig{
		ProgramName:   "pricefeed-consumer",
		FeedID:        2,
		Channel:       "real_time",
		Scheme:        "ed25519",
		PriceExponent: -8,
	}
}

// defaultStoreConfig returns the default record store configuration
func defaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: StoreRedis,
		Dir:     "data",
		Name:    "pricefeed",
	}
}

// defaultMetricsConfig returns the default metrics configuration
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Address: ":9102",
		Path:    "/metrics",
	}
}

// defaultConfig returns a complete configuration with all default values
func defaultConfig() *Config {
	return &Config{
		Redis:    defaultRedisConfig(),
		MQTT:     defaultMQTTConfig(),
		Pipeline: defaultPipelineConfig(),
		Feed:     defaultFeedConfig(),
		Store:    defaultStoreConfig(),
		Metrics:  defaultMetricsConfig(),
	}
}
