package config

import (
	"testing"
	"time"
)

func TestDefaultRedisConfig(t *testing.T) {
	cfg := defaultRedisConfig()

	if cfg.Address != "localhost:6379" {
		t.Errorf("Address = %s; want localhost:6379", cfg.Address)
	}
	if cfg.KeyPrefix != "pricefeed:state:" {
		t.Errorf("KeyPrefix = %s; want pricefeed:state:", cfg.KeyPrefix)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d; want 100", cfg.BatchSize)
	}
	if cfg.ClaimIdle != 30*time.Second {
		t.Errorf("ClaimIdle = %v; want 30s", cfg.ClaimIdle)
	}
}

func TestDefaultMQTTConfig(t *testing.T) {
	cfg := defaultMQTTConfig()

	if cfg.ResultTopic != "pricefeed/results" {
		t.Errorf("ResultTopic = %s; want pricefeed/results", cfg.ResultTopic)
	}
	if cfg.TxTopic != "" {
		t.Errorf("TxTopic = %s; want empty", cfg.TxTopic)
	}
	if cfg.QoS != 1 {
		t.Errorf("QoS = %d; want 1", cfg.QoS)
	}
	if cfg.TLSEnabled {
		t.Error("TLSEnabled = true; want false")
	}
}

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := defaultPipelineConfig()

	if cfg.ExecuteWorkers != 1 {
		t.Errorf("ExecuteWorkers = %d; want 1", cfg.ExecuteWorkers)
	}
	if cfg.DedupSize != 4096 {
		t.Errorf("DedupSize = %d; want 4096", cfg.DedupSize)
	}
}

func TestDefaultFeedConfig(t *testing.T) {
	cfg := defaultFeedConfig()

	if cfg.Scheme != "ed25519" {
		t.Errorf("Scheme = %s; want ed25519", cfg.Scheme)
	}
	if cfg.PriceExponent != -8 {
		t.Errorf("PriceExponent = %d; want -8", cfg.PriceExponent)
	}
	if len(cfg.TrustedSigners) != 0 {
		t.Errorf("TrustedSigners = %v; want none", cfg.TrustedSigners)
	}
}

func TestDefaultConfig_OnlyTrustMissing(t *testing.T) {
	cfg := defaultConfig()
	if err := resolveProgramID(&cfg.Feed); err != nil {
		t.Fatalf("resolveProgramID() error = %v", err)
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() error = nil; want missing trusted signer")
	}

	cfg.Feed.TrustedSigners = []string{testSignerKey}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v; want nil", err)
	}
}
