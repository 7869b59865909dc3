package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/internal/redis"
	"github.com/ibs-source/pricefeed-consumer/internal/state"
)

type recordView struct {
	Key               string `json:"key"`
	FeedID            uint32 `json:"feed_id"`
	Initialized       bool   `json:"initialized"`
	LatestTimestampUs uint64 `json:"latest_timestamp_us"`
	LatestPrice       int64  `json:"latest_price"`
	PriceDecimal      string `json:"price_decimal"`
}

type stateFlags struct {
	store        string
	redisAddress string
	keyPrefix    string
	dir          string
	name         string
	feed         uint32
	exponent     int32
	timeout      time.Duration
}

// open returns the record store and a function releasing it
func (s *stateFlags) open() (state.Backend, func() error, error) {
	switch s.store {
	case config.StoreRedis:
		rdb, err := redis.Dial(&config.RedisConfig{
			Address:      s.redisAddress,
			DialTimeout:  s.timeout,
			ReadTimeout:  s.timeout,
			WriteTimeout: s.timeout,
			PingTimeout:  s.timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return redis.NewBackend(rdb, s.keyPrefix), rdb.Close, nil
	case config.StoreLevelDB:
		db, err := state.OpenDBBackend(s.name, s.dir, s.keyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store %q (redis or leveldb)", s.store)
	}
}

func readRecord(ctx context.Context, backend state.Backend, program [32]byte, feed protocol.FeedID, exponent int32) (recordView, error) {
	adapter := state.NewAdapter(backend, program)
	h := adapter.HandleFor(feed)
	view := recordView{Key: h.Key.String(), FeedID: uint32(feed)}

	rec, err := adapter.Read(ctx, h)
	if errors.Is(err, state.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return view, err
	}
	view.Initialized = true
	view.FeedID = uint32(rec.FeedID)
	view.LatestTimestampUs = rec.LatestTimestampUs
	view.LatestPrice = int64(rec.LatestPrice)
	view.PriceDecimal = rec.LatestPrice.Decimal(exponent).String()
	return view, nil
}

func newStateCmd() *cobra.Command {
	var (
		program programFlags
		flags   stateFlags
	)
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Read the record of a consumer instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := program.programID()
			if err != nil {
				return err
			}
			backend, closeFn, err := flags.open()
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			ctx, cancel := context.WithTimeout(contextOrBackground(cmd.Context()), flags.timeout)
			defer cancel()
			view, err := readRecord(ctx, backend, id, protocol.FeedID(flags.feed), flags.exponent)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
	program.register(cmd)

	f := cmd.Flags()
	f.StringVar(&flags.store, "store", config.StoreRedis, "record store (redis or leveldb)")
	f.StringVar(&flags.redisAddress, "redis-address", "localhost:6379", "Redis address")
	f.StringVar(&flags.keyPrefix, "key-prefix", "pricefeed:state:", "record key prefix")
	f.StringVar(&flags.dir, "store-dir", "data", "leveldb directory")
	f.StringVar(&flags.name, "store-name", "pricefeed", "leveldb database name")
	f.Uint32Var(&flags.feed, "feed", 2, "feed id")
	f.Int32Var(&flags.exponent, "exponent", protocol.DefaultPriceExponent, "decimal exponent used to render prices")
	f.DurationVar(&flags.timeout, "timeout", 10*time.Second, "connect and read timeout")
	return cmd
}
