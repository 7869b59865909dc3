package mqtt

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/message"
)

// Pool spreads result publishing over several connections
type Pool struct {
	clients []*Client
	next    atomic.Uint64
	size    int
	log     *log.Logger
}

// clientIDBase makes client ids unique per process so several daemons can
// run with the same configuration.
func clientIDBase(clientID string) string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", clientID, hostname, os.Getpid())
}

// NewPool creates a new MQTT connection pool
func NewPool(cfg *config.MQTTConfig, poolSize int, logger *log.Logger) (*Pool, error) {
	if poolSize < 1 {
		poolSize = 1
	}

	base := clientIDBase(cfg.ClientID)
	clients := make([]*Client, poolSize)

	for i := 0; i < poolSize; i++ {
		clientCfg := *cfg
		clientCfg.ClientID = fmt.Sprintf("%s-%d", base, i)

		client, err := NewClient(&clientCfg, logger)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = clients[j].Close()
			}
			return nil, fmt.Errorf("failed to create client %d: %w", i, err)
		}

		clients[i] = client
	}

	return &Pool{
		clients: clients,
		size:    poolSize,
		log:     logger,
	}, nil
}

// Publish publishes a result using round-robin across connections
func (p *Pool) Publish(ctx context.Context, payload message.Payload) error {
	idx := p.next.Add(1) % uint64(p.size) // #nosec G115
	return p.clients[idx].Publish(ctx, payload)
}

// SubscribeTransactions subscribes on the first connection only, so each
// transaction is delivered once per daemon.
func (p *Pool) SubscribeTransactions(handler func(message.Payload)) error {
	return p.clients[0].SubscribeTransactions(handler)
}

// Close closes all connections in the pool
func (p *Pool) Close() error {
	var lastErr error
	for i, client := range p.clients {
		if err := client.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close client %d: %w", i, err)
		}
	}
	return lastErr
}
