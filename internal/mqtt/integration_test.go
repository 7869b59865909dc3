package mqtt

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/message"
)

// setupIntegrationConfig points at the broker named by MQTT_BROKER and
// skips when none is configured.
func setupIntegrationConfig(t *testing.T) *config.MQTTConfig {
	t.Helper()
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" || testing.Short() {
		t.Skip("MQTT_BROKER not set, skipping integration test")
	}
	return &config.MQTTConfig{
		Broker:               broker,
		ClientID:             "pricefeed-integration",
		ResultTopic:          "pricefeed-test/results",
		TxTopic:              "pricefeed-test/tx",
		QoS:                  1,
		ConnectTimeout:       5 * time.Second,
		WriteTimeout:         5 * time.Second,
		MaxReconnectInterval: time.Second,
		SubscribeTimeout:     5 * time.Second,
		DisconnectTimeout:    250,
	}
}

func TestIntegration_PublishResult(t *testing.T) {
	cfg := setupIntegrationConfig(t)

	pool, err := NewPool(cfg, 2, log.Discard())
	if err != nil {
		t.Fatalf("Failed to create MQTT pool: %v", err)
	}
	defer func() { _ = pool.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 4; i++ {
		if err := pool.Publish(ctx, []byte(`{"id":"tx","ok":true}`)); err != nil {
			t.Fatalf("Publish %d failed: %v", i, err)
		}
	}
}

func TestIntegration_TransactionRoundTrip(t *testing.T) {
	cfg := setupIntegrationConfig(t)
	logger := log.Discard()

	consumer, err := NewClient(cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create consumer client: %v", err)
	}
	defer func() { _ = consumer.Close() }()

	received := make(chan message.Payload, 1)
	if err := consumer.SubscribeTransactions(func(p message.Payload) { received <- p }); err != nil {
		t.Fatalf("SubscribeTransactions failed: %v", err)
	}

	producerCfg := *cfg
	producerCfg.ClientID = "pricefeed-integration-producer"
	producer, err := NewClient(&producerCfg, logger)
	if err != nil {
		t.Fatalf("Failed to create producer client: %v", err)
	}
	defer func() { _ = producer.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	body := []byte(`{"id":"roundtrip","instructions":[]}`)
	if err := producer.PublishTo(ctx, cfg.TxTopic, body); err != nil {
		t.Fatalf("PublishTo failed: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(body) {
			t.Errorf("received %s; want %s", got, body)
		}
	case <-ctx.Done():
		t.Fatal("transaction not received")
	}
}
