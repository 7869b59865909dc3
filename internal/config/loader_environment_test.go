package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadRedisFromEnv(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("REDIS_ADDRESS", "env-redis:6379")
	t.Setenv("REDIS_KEY_PREFIX", "env:")
	t.Setenv("REDIS_BATCH_SIZE", "25")
	t.Setenv("REDIS_CLAIM_IDLE", "45s")
	t.Setenv("REDIS_PING_TIMEOUT", "not-a-duration")

	cfg := defaultRedisConfig()
	loadRedisFromEnv(&cfg)

	if cfg.Address != "env-redis:6379" {
		t.Errorf("Address = %s; want env-redis:6379", cfg.Address)
	}
	if cfg.KeyPrefix != "env:" {
		t.Errorf("KeyPrefix = %s; want env:", cfg.KeyPrefix)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d; want 25", cfg.BatchSize)
	}
	if cfg.ClaimIdle != 45*time.Second {
		t.Errorf("ClaimIdle = %v; want 45s", cfg.ClaimIdle)
	}
	if cfg.PingTimeout != 5*time.Second {
		t.Errorf("PingTimeout = %v; want default 5s on malformed value", cfg.PingTimeout)
	}
}

func TestLoadMQTTFromEnv(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("MQTT_RESULT_TOPIC", "env/results")
	t.Setenv("MQTT_TX_TOPIC", "env/tx")
	t.Setenv("MQTT_QOS", "0")
	t.Setenv("MQTT_DISCONNECT_TIMEOUT", "-5")
	t.Setenv("MQTT_TLS_ENABLED", "true")

	cfg := defaultMQTTConfig()
	loadMQTTFromEnv(&cfg)

	if cfg.ResultTopic != "env/results" {
		t.Errorf("ResultTopic = %s; want env/results", cfg.ResultTopic)
	}
	if cfg.TxTopic != "env/tx" {
		t.Errorf("TxTopic = %s; want env/tx", cfg.TxTopic)
	}
	if cfg.QoS != 0 {
		t.Errorf("QoS = %d; want 0", cfg.QoS)
	}
	if cfg.DisconnectTimeout != 1000 {
		t.Errorf("DisconnectTimeout = %d; want default on negative value", cfg.DisconnectTimeout)
	}
	if !cfg.TLSEnabled {
		t.Error("TLSEnabled = false; want true")
	}
}

func TestLoadFeedFromEnv(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("FEED_ID", "0")
	t.Setenv("FEED_PRICE_EXPONENT", "0")
	t.Setenv("FEED_TRUSTED_SIGNERS", " a ,, b ")
	t.Setenv("FEED_TRUST_EXPIRES_AT", "2030-01-02T03:04:05Z")

	cfg := defaultFeedConfig()
	if err := loadFeedFromEnv(&cfg); err != nil {
		t.Fatalf("loadFeedFromEnv() error = %v", err)
	}

	if cfg.FeedID != 0 {
		t.Errorf("FeedID = %d; want 0", cfg.FeedID)
	}
	if cfg.PriceExponent != 0 {
		t.Errorf("PriceExponent = %d; want 0", cfg.PriceExponent)
	}
	if !reflect.DeepEqual(cfg.TrustedSigners, []string{"a", "b"}) {
		t.Errorf("TrustedSigners = %v; want [a b]", cfg.TrustedSigners)
	}
	if want := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC); !cfg.TrustExpiresAt.Equal(want) {
		t.Errorf("TrustExpiresAt = %v; want %v", cfg.TrustExpiresAt, want)
	}
}

func TestLoadMetricsFromEnv_EmptyDisables(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("METRICS_ADDRESS", "")

	cfg := defaultMetricsConfig()
	loadMetricsFromEnv(&cfg)
	if cfg.Address != "" {
		t.Errorf("Address = %s; want empty", cfg.Address)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{",", nil},
		{"a", []string{"a"}},
		{"a, b,c ", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
