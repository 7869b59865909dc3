package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/message"
	"github.com/ibs-source/pricefeed-consumer/internal/mqtt"
	"github.com/ibs-source/pricefeed-consumer/internal/redis"
)

// Submission targets
const (
	targetPrint = "print"
	targetRedis = "redis"
	targetMQTT  = "mqtt"
)

// programFlags name the consumer instance a command addresses
type programFlags struct {
	name string
	id   string
}

func (p *programFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.name, "program-name", "pricefeed-consumer", "consumer program name")
	cmd.Flags().StringVar(&p.id, "program-id", "", "consumer program id (hex); overrides --program-name")
}

func (p *programFlags) programID() (ledger.ProgramID, error) {
	if p.id != "" {
		return ledger.ParseProgramID(p.id)
	}
	if p.name == "" {
		return ledger.ProgramID{}, fmt.Errorf("--program-name or --program-id is required")
	}
	return ledger.ProgramIDFromName(p.name), nil
}

// submitFlags select where a built transaction goes
type submitFlags struct {
	target       string
	redisAddress string
	redisStream  string
	mqttBroker   string
	mqttTopic    string
	mqttClientID string
	timeout      time.Duration
}

func (s *submitFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&s.target, "submit", targetPrint, "where to send the transaction (print, redis, mqtt)")
	f.StringVar(&s.redisAddress, "redis-address", "localhost:6379", "Redis address")
	f.StringVar(&s.redisStream, "redis-stream", "pricefeed-transactions", "Redis transaction stream")
	f.StringVar(&s.mqttBroker, "mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	f.StringVar(&s.mqttTopic, "mqtt-tx-topic", "pricefeed/transactions", "MQTT transaction topic")
	f.StringVar(&s.mqttClientID, "mqtt-client-id", "", "MQTT client ID (default lazerctl-<pid>)")
	f.DurationVar(&s.timeout, "timeout", 10*time.Second, "connect and submit timeout")
}

// submit encodes tx and sends it to the selected target
func (s *submitFlags) submit(cmd *cobra.Command, tx *ledger.Transaction) error {
	body, err := message.EncodeTransaction(tx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch s.target {
	case targetPrint:
		fmt.Fprintln(out, string(body))
		return nil
	case targetRedis:
		entry, err := s.submitRedis(cmd.Context(), body)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "transaction %s added to %s as %s\n", tx.ID, s.redisStream, entry)
		return nil
	case targetMQTT:
		if err := s.submitMQTT(cmd.Context(), body); err != nil {
			return err
		}
		fmt.Fprintf(out, "transaction %s published to %s\n", tx.ID, s.mqttTopic)
		return nil
	default:
		return fmt.Errorf("unknown submit target %q", s.target)
	}
}

func (s *submitFlags) redisConfig() *config.RedisConfig {
	return &config.RedisConfig{
		Address:      s.redisAddress,
		DialTimeout:  s.timeout,
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
		PingTimeout:  s.timeout,
	}
}

func (s *submitFlags) submitRedis(ctx context.Context, body message.Payload) (string, error) {
	rdb, err := redis.Dial(s.redisConfig())
	if err != nil {
		return "", err
	}
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithTimeout(contextOrBackground(ctx), s.timeout)
	defer cancel()
	return redis.AddTransaction(ctx, rdb, s.redisStream, body)
}

func (s *submitFlags) submitMQTT(ctx context.Context, body message.Payload) error {
	clientID := s.mqttClientID
	if clientID == "" {
		clientID = fmt.Sprintf("lazerctl-%d", os.Getpid())
	}
	client, err := mqtt.NewClient(&config.MQTTConfig{
		Broker:               s.mqttBroker,
		ClientID:             clientID,
		QoS:                  1,
		ConnectTimeout:       s.timeout,
		WriteTimeout:         s.timeout,
		MaxReconnectInterval: s.timeout,
		SubscribeTimeout:     s.timeout,
		DisconnectTimeout:    250,
	}, quietLogger())
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return client.PublishTo(contextOrBackground(ctx), s.mqttTopic, body)
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// quietLogger logs connection noise at warn and above; LOG_LEVEL overrides.
func quietLogger() *log.Logger {
	logger := log.New()
	if os.Getenv("LOG_LEVEL") == "" {
		logger.SetLevel("warn")
	}
	return logger
}
