// Package mqtt provides the MQTT client and connection pool publishing
// execution results and receiving transactions.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/message"
)

// Client publishes results and delivers transactions from the broker
type Client struct {
	client            mqtt.Client
	resultTopic       string
	txTopic           string
	qos               byte
	writeTimeout      time.Duration
	subscribeTimeout  time.Duration
	disconnectTimeout uint
	txHandler         func(message.Payload)
	mu                sync.RWMutex
	log               *log.Logger
}

// NewClient creates a new MQTT client
func NewClient(cfg *config.MQTTConfig, logger *log.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetWriteTimeout(cfg.WriteTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.MaxReconnectInterval)

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetMessageChannelDepth(10000)
	opts.SetResumeSubs(true)
	// Updates to one record must be applied in publication order.
	opts.SetOrderMatters(true)
	opts.SetMaxResumePubInFlight(1000)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if err != nil {
			logger.Error("MQTT connection lost: %v", err)
		}
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("MQTT reconnecting...")
	})

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connected to %s", cfg.Broker)
	})

	if cfg.TLSEnabled {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	return &Client{
		client:            client,
		resultTopic:       cfg.ResultTopic,
		txTopic:           cfg.TxTopic,
		qos:               cfg.QoS,
		writeTimeout:      cfg.WriteTimeout,
		subscribeTimeout:  cfg.SubscribeTimeout,
		disconnectTimeout: cfg.DisconnectTimeout,
		log:               logger,
	}, nil
}

// newTLSConfig creates a TLS configuration from MQTT config
func newTLSConfig(cfg *config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkip, // #nosec G402 - configurable for testing environments
		MinVersion:         tls.VersionTLS12,
	}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Publish sends a result to the result topic
func (c *Client) Publish(ctx context.Context, payload message.Payload) error {
	return c.PublishTo(ctx, c.resultTopic, payload)
}

// PublishTo sends payload to topic, waiting at most the write timeout
func (c *Client) PublishTo(ctx context.Context, topic string, payload message.Payload) error {
	token := c.client.Publish(topic, c.qos, false, payload)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.writeTimeout):
		return fmt.Errorf("mqtt publish timeout")
	}
}

// SubscribeTransactions registers a callback for transactions received on
// the transaction topic. It is a no-op when no topic is configured.
func (c *Client) SubscribeTransactions(handler func(message.Payload)) error {
	if c.txTopic == "" {
		return nil
	}

	c.mu.Lock()
	c.txHandler = handler
	c.mu.Unlock()

	token := c.client.Subscribe(c.txTopic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		c.handleTransaction(msg.Payload())
	})

	if !token.WaitTimeout(c.subscribeTimeout) {
		return fmt.Errorf("mqtt transaction subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to transaction topic: %w", err)
	}

	c.log.Info("Subscribed to transaction topic '%s'", c.txTopic)
	return nil
}

// handleTransaction hands a copy of payload to the registered handler;
// paho reuses message buffers.
func (c *Client) handleTransaction(payload []byte) {
	c.mu.RLock()
	handler := c.txHandler
	c.mu.RUnlock()

	if handler == nil || len(payload) == 0 {
		return
	}
	handler(append(message.Payload(nil), payload...))
}

// Close disconnects from the MQTT broker
func (c *Client) Close() error {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(c.disconnectTimeout)
	}
	return nil
}
