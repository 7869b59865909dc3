package config

import (
	"fmt"
	"time"

	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/internal/trust"
)

// Validate checks configuration constraints
func Validate(cfg *Config) error {
	if err := validateRedis(&cfg.Redis); err != nil {
		return err
	}
	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}
	if err := validatePipeline(&cfg.Pipeline); err != nil {
		return err
	}
	if err := validateFeed(&cfg.Feed); err != nil {
		return err
	}
	return validateStore(&cfg.Store)
}

// validateRedis validates Redis configuration
func validateRedis(cfg *RedisConfig) error {
	if cfg.Address == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if cfg.Stream == "" {
		return fmt.Errorf("redis stream cannot be empty")
	}
	if cfg.Consumer == "" {
		return fmt.Errorf("redis consumer name cannot be empty")
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("redis batch size must be positive")
	}
	return nil
}

// validateMQTT validates MQTT configuration
func validateMQTT(cfg *MQTTConfig) error {
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker cannot be empty")
	}
	if cfg.ClientID == "" {
		return fmt.Errorf("mqtt client ID cannot be empty")
	}
	if cfg.PoolSize < 1 {
		return fmt.Errorf("mqtt pool size must be positive")
	}
	if cfg.ResultTopic == "" {
		return fmt.Errorf("mqtt result topic cannot be empty")
	}
	if cfg.TxTopic != "" && cfg.TxTopic == cfg.ResultTopic {
		return fmt.Errorf("mqtt transaction and result topics must differ")
	}
	return nil
}

// validatePipeline validates Pipeline configuration
func validatePipeline(cfg *PipelineConfig) error {
	if cfg.BufferCapacity < 1 {
		return fmt.Errorf("pipeline buffer capacity must be positive")
	}
	if cfg.ExecuteWorkers < 1 {
		return fmt.Errorf("pipeline execute workers must be positive")
	}
	if cfg.DedupSize < 1 {
		return fmt.Errorf("pipeline dedup size must be positive")
	}
	return nil
}

// validateFeed validates the consumer instance configuration
func validateFeed(cfg *FeedConfig) error {
	if _, err := protocol.ParseChannel(cfg.Channel); err != nil {
		return fmt.Errorf("feed channel: %w", err)
	}
	if _, err := Anchors(cfg); err != nil {
		return err
	}
	return nil
}

// validateStore validates record store configuration
func validateStore(cfg *StoreConfig) error {
	switch cfg.Backend {
	case StoreRedis, StoreMemory:
		return nil
	case StoreLevelDB:
		if cfg.Dir == "" || cfg.Name == "" {
			return fmt.Errorf("leveldb store needs a directory and a name")
		}
		return nil
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Anchors parses the trusted signers of cfg for its scheme
func Anchors(cfg *FeedConfig) ([]trust.Anchor, error) {
	scheme, err := protocol.ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, fmt.Errorf("feed scheme: %w", err)
	}
	if len(cfg.TrustedSigners) == 0 {
		return nil, fmt.Errorf("at least one trusted signer is required")
	}
	if !cfg.TrustExpiresAt.IsZero() && !cfg.TrustExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("trusted signers expired at %s", cfg.TrustExpiresAt.Format(time.RFC3339))
	}
	anchors := make([]trust.Anchor, 0, len(cfg.TrustedSigners))
	for _, s := range cfg.TrustedSigners {
		a, err := trust.ParseAnchor(scheme, s, cfg.TrustExpiresAt)
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, a)
	}
	return anchors, nil
}
