package redis

import (
	"context"
	"fmt"
	"time"
)

// CleanupDeadConsumers removes consumers idle for longer than idleTimeout
// from the consumer group. Their pending entries become claimable by the
// remaining consumers.
func (c *Client) CleanupDeadConsumers(ctx context.Context, idleTimeout time.Duration) (int, error) {
	consumers, err := c.rdb.XInfoConsumers(ctx, c.stream, c.group).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get consumers info: %w", err)
	}

	var removed int
	for _, consumer := range consumers {
		if consumer.Name == c.consumer {
			continue
		}
		if consumer.Idle <= idleTimeout {
			c.log.Debug("Consumer %s is active (idle for %s)", consumer.Name, consumer.Idle)
			continue
		}

		c.log.Info("Removing dead consumer %s (idle for %s)", consumer.Name, consumer.Idle)
		pending, err := c.rdb.XGroupDelConsumer(ctx, c.stream, c.group, consumer.Name).Result()
		if err != nil {
			c.log.Error("Failed to delete consumer %s: %v", consumer.Name, err)
			continue
		}
		if pending > 0 {
			c.log.Warn("Consumer %s left %d pending transactions behind", consumer.Name, pending)
		}
		removed++
	}

	if removed > 0 {
		c.log.Info("Cleaned up %d dead consumers", removed)
	}
	return removed, nil
}
