// Package redis consumes the transaction stream through a consumer group
// and stores consumer records.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/message"
)

// TxField is the stream entry field carrying the JSON transaction
const TxField = "tx"

// Client manages Redis stream operations
type Client struct {
	rdb          *redis.Client
	stream       string
	group        string
	consumer     string
	batchSize    int64
	blockTimeout time.Duration
	claimIdle    time.Duration
	log          *log.Logger
}

// Dial opens a connection and checks it with PING
func Dial(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewClient creates a new Redis client and joins the consumer group of
// the transaction stream, creating both when missing.
func NewClient(cfg *config.RedisConfig, logger *log.Logger) (*Client, error) {
	rdb, err := Dial(cfg)
	if err != nil {
		return nil, err
	}

	client := &Client{
		rdb:          rdb,
		stream:       cfg.Stream,
		group:        "group-" + cfg.Stream,
		consumer:     cfg.Consumer,
		batchSize:    int64(cfg.BatchSize),
		blockTimeout: cfg.BlockTimeout,
		claimIdle:    cfg.ClaimIdle,
		log:          logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := client.ensureGroup(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	logger.Info("Consuming transactions from stream '%s' as '%s'", client.stream, client.consumer)
	return client, nil
}

func (c *Client) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil {
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			c.log.Info("Consumer group '%s' already exists for stream '%s', joining existing group", c.group, c.stream)
			return nil
		}
		return fmt.Errorf("failed to create consumer group for stream %s: %w", c.stream, err)
	}
	c.log.Info("Created consumer group '%s' for stream '%s'", c.group, c.stream)
	return nil
}

// Redis returns the underlying connection, shared with the record store
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Stream returns the transaction stream name
func (c *Client) Stream() string {
	return c.stream
}

// ReadBatch fetches new entries using XREADGROUP
func (c *Client) ReadBatch(ctx context.Context) (message.Batch[message.Payload], error) {
	result, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockTimeout,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return message.Batch[message.Payload]{}, nil
		}
		return message.Batch[message.Payload]{}, fmt.Errorf("xreadgroup failed: %w", err)
	}

	var items []message.Redis[message.Payload]
	for _, streamResult := range result {
		items = append(items, c.toMessages(streamResult.Messages)...)
	}
	return message.Batch[message.Payload]{Items: items}, nil
}

// ClaimIdle takes over entries left pending by other consumers for longer
// than the claim idle time.
func (c *Client) ClaimIdle(ctx context.Context) (message.Batch[message.Payload], error) {
	pending, err := c.getPendingMessages(ctx)
	if err != nil {
		return message.Batch[message.Payload]{}, err
	}
	if len(pending) == 0 {
		return message.Batch[message.Payload]{}, nil
	}

	claimed, err := c.claimMessages(ctx, pending)
	if err != nil {
		return message.Batch[message.Payload]{}, err
	}
	return message.Batch[message.Payload]{Items: c.toMessages(claimed)}, nil
}

func (c *Client) getPendingMessages(ctx context.Context) ([]redis.XPendingExt, error) {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Idle:   c.claimIdle,
		Start:  "-",
		End:    "+",
		Count:  c.batchSize,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xpending failed: %w", err)
	}
	return pending, nil
}

func (c *Client) claimMessages(ctx context.Context, pending []redis.XPendingExt) ([]redis.XMessage, error) {
	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}

	claimed, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  c.claimIdle,
		Messages: ids,
	}).Result()

	if err != nil {
		return nil, fmt.Errorf("xclaim failed: %w", err)
	}
	return claimed, nil
}

// toMessages extracts the transaction field of each entry. Entries without
// one are kept with an empty body so the caller can reject and acknowledge
// them instead of leaving them pending forever.
func (c *Client) toMessages(entries []redis.XMessage) []message.Redis[message.Payload] {
	out := make([]message.Redis[message.Payload], 0, len(entries))
	for _, msg := range entries {
		var body message.Payload
		switch v := msg.Values[TxField].(type) {
		case string:
			body = message.Payload(v)
		default:
			c.log.Warn("Stream entry %s has no '%s' field", msg.ID, TxField)
		}
		out = append(out, message.Redis[message.Payload]{ID: msg.ID, Body: body})
	}
	return out
}

// Add appends a transaction to the stream and returns the entry id
func (c *Client) Add(ctx context.Context, body message.Payload) (string, error) {
	return AddTransaction(ctx, c.rdb, c.stream, body)
}

// AddTransaction appends body to stream on rdb
func AddTransaction(ctx context.Context, rdb redis.Cmdable, stream string, body message.Payload) (string, error) {
	id, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{TxField: string(body)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd failed for stream %s: %w", stream, err)
	}
	return id, nil
}

// AckAndDelete acknowledges and deletes an entry from the stream
func (c *Client) AckAndDelete(ctx context.Context, msg message.Redis[message.Payload]) error {
	if err := c.rdb.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack failed for message %s in stream %s: %w", msg.ID, c.stream, err)
	}

	if err := c.rdb.XDel(ctx, c.stream, msg.ID).Err(); err != nil {
		return fmt.Errorf("xdel failed for message %s in stream %s: %w", msg.ID, c.stream, err)
	}

	return nil
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}
