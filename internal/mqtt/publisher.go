package mqtt

import (
	"context"

	"github.com/ibs-source/pricefeed-consumer/internal/message"
)

// Publisher publishes results and optionally feeds transactions back.
// Implemented by a single Client or a Pool.
type Publisher interface {
	Publish(ctx context.Context, payload message.Payload) error
	SubscribeTransactions(handler func(message.Payload)) error
	Close() error
}

var (
	_ Publisher = (*Client)(nil)
	_ Publisher = (*Pool)(nil)
)
