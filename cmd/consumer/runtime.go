package main

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/engine"
	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/linkage"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/internal/redis"
	"github.com/ibs-source/pricefeed-consumer/internal/state"
	"github.com/ibs-source/pricefeed-consumer/internal/trust"
	"github.com/ibs-source/pricefeed-consumer/internal/verifier"
)

// store is the record backend plus whatever must be released with it.
// The redis backend shares the stream connection, closed separately.
type store struct {
	backend state.Backend
	close   func() error
}

func (s *store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func openStore(cfg *config.Config, rdb goredis.UniversalClient) (*store, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		return &store{backend: redis.NewBackend(rdb, cfg.Redis.KeyPrefix)}, nil
	case config.StoreLevelDB:
		db, err := state.OpenDBBackend(cfg.Store.Name, cfg.Store.Dir, cfg.Redis.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return &store{backend: db, close: db.Close}, nil
	case config.StoreMemory:
		return &store{backend: state.NewMemoryBackend()}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// newRuntime assembles the signature verifiers and the consumer program
// described by cfg on top of backend.
func newRuntime(cfg *config.Config, backend state.Backend, logger *log.Logger) (*ledger.Runtime, error) {
	programID, err := ledger.ParseProgramID(cfg.Feed.ProgramID)
	if err != nil {
		return nil, err
	}
	scheme, err := protocol.ParseScheme(cfg.Feed.Scheme)
	if err != nil {
		return nil, err
	}
	channel, err := protocol.ParseChannel(cfg.Feed.Channel)
	if err != nil {
		return nil, err
	}
	anchors, err := config.Anchors(&cfg.Feed)
	if err != nil {
		return nil, err
	}
	validator, err := linkage.New(scheme, trust.NewStatic(anchors...))
	if err != nil {
		return nil, err
	}

	program, err := engine.NewProgram(engine.Config{
		ProgramID: programID,
		FeedID:    protocol.FeedID(cfg.Feed.FeedID),
		Channel:   channel,
		Validator: validator,
	}, logger)
	if err != nil {
		return nil, err
	}

	rt := ledger.NewRuntime(backend)
	rt.Register(ledger.Ed25519VerifierID, verifier.Ed25519Program{})
	rt.Register(ledger.Secp256k1VerifierID, verifier.Secp256k1Program{})
	rt.Register(programID, program)
	logger.Info("Consumer program %s registered for feed %d", programID, cfg.Feed.FeedID)
	return rt, nil
}
