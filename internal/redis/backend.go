package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ibs-source/pricefeed-consumer/internal/state"
)

// maxApplyRetries bounds optimistic retries when a watched key changes
// between the checks and the write.
const maxApplyRetries = 8

// Backend stores consumer records as Redis strings under a key prefix.
//
// Apply checks and writes inside WATCH/MULTI so creation, update and the
// prior-value comparison hold when several daemons share one Redis.
type Backend struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ state.Backend = (*Backend)(nil)

// NewBackend returns a record store on rdb
func NewBackend(rdb redis.UniversalClient, prefix string) *Backend {
	return &Backend{rdb: rdb, prefix: prefix}
}

func (b *Backend) redisKey(k state.Key) string {
	return b.prefix + k.String()
}

// Get loads the record stored at key
func (b *Backend) Get(ctx context.Context, key state.Key) ([]byte, error) {
	bz, err := b.rdb.Get(ctx, b.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, state.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return bz, nil
}

// Apply writes every mutation in one MULTI/EXEC after checking them
// against the watched keys. A stale Prior fails with state.ErrConflict
// without retrying.
func (b *Backend) Apply(ctx context.Context, mutations []state.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	keys := make([]string, 0, len(mutations))
	seen := make(map[state.Key]bool, len(mutations))
	for _, mut := range mutations {
		if !seen[mut.Key] {
			seen[mut.Key] = true
			keys = append(keys, b.redisKey(mut.Key))
		}
	}

	txf := func(tx *redis.Tx) error {
		var lookupErr error
		err := state.CheckMutations(mutations, func(k state.Key) ([]byte, bool) {
			bz, err := tx.Get(ctx, b.redisKey(k)).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil, false
			}
			if err != nil && lookupErr == nil {
				lookupErr = err
			}
			return bz, err == nil
		})
		if lookupErr != nil {
			return fmt.Errorf("redis get: %w", lookupErr)
		}
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, mut := range mutations {
				pipe.Set(ctx, b.redisKey(mut.Key), mut.Value, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxApplyRetries; i++ {
		err := b.rdb.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: watched keys kept changing", state.ErrConflict)
}
