// Package hotpath drives transactions from the intake stream through the
// runtime and publishes one result per transaction.
package hotpath

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/engine"
	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/message"
	"github.com/ibs-source/pricefeed-consumer/internal/metrics"
	"github.com/ibs-source/pricefeed-consumer/internal/mqtt"
	"github.com/ibs-source/pricefeed-consumer/internal/redis"
	"github.com/ibs-source/pricefeed-consumer/pkg/jsonfast"
)

// Stream is the acknowledged transaction intake. Implemented by
// *redis.Client.
type Stream interface {
	ReadBatch(ctx context.Context) (message.Batch[message.Payload], error)
	ClaimIdle(ctx context.Context) (message.Batch[message.Payload], error)
	AckAndDelete(ctx context.Context, msg message.Redis[message.Payload]) error
	CleanupDeadConsumers(ctx context.Context, idleTimeout time.Duration) (int, error)
}

// Executor runs one transaction atomically. Implemented by
// *ledger.Runtime.
type Executor interface {
	Execute(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error)
}

var (
	_ Stream   = (*redis.Client)(nil)
	_ Executor = (*ledger.Runtime)(nil)
)

// job is one delivery. MQTT deliveries have nothing to acknowledge.
type job struct {
	msg     message.Redis[message.Payload]
	ackable bool
}

// HotPath orchestrates intake, execution and result publishing
type HotPath struct {
	stream   Stream
	mqtt     mqtt.Publisher
	executor Executor
	metrics  *metrics.Metrics
	dedup    *lru.Cache

	// ids of transactions being executed, closed when execution ends
	inflightMu sync.Mutex
	inflight   map[string]chan struct{}

	jobs          chan job
	claimTicker   *time.Ticker
	cleanupTicker *time.Ticker

	consumerIdleTimeout time.Duration
	errorBackoff        time.Duration
	ackTimeout          time.Duration
	executeWorkers      int
	exponent            int32

	now func() time.Time
	log *log.Logger
}

// New creates a new HotPath instance
func New(
	stream Stream,
	publisher mqtt.Publisher,
	executor Executor,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *log.Logger,
) (*HotPath, error) {
	dedup, err := lru.New(cfg.Pipeline.DedupSize)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	workers := cfg.Pipeline.ExecuteWorkers
	if workers < 1 {
		workers = 1
	}
	return &HotPath{
		stream:              stream,
		mqtt:                publisher,
		executor:            executor,
		metrics:             m,
		dedup:               dedup,
		inflight:            make(map[string]chan struct{}),
		jobs:                make(chan job, cfg.Pipeline.BufferCapacity),
		claimTicker:         time.NewTicker(cfg.Redis.ClaimIdle),
		cleanupTicker:       time.NewTicker(cfg.Redis.CleanupInterval),
		consumerIdleTimeout: cfg.Redis.ConsumerIdleTimeout,
		errorBackoff:        cfg.Pipeline.ErrorBackoff,
		ackTimeout:          cfg.Pipeline.AckTimeout,
		executeWorkers:      workers,
		exponent:            int32(cfg.Feed.PriceExponent), // #nosec G115 - validated range
		now:                 time.Now,
		log:                 logger,
	}, nil
}

// startLoop starts a named goroutine and reports its first error
func (h *HotPath) startLoop(ctx context.Context, wg *sync.WaitGroup, name string, loop func(context.Context) error, errCh chan<- error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.log.Error("%s failed: %v", name, err)
			select {
			case errCh <- err:
			default:
			}
		}
	}()
}

// Run starts all loops and blocks until ctx is done or a loop fails
func (h *HotPath) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := h.mqtt.SubscribeTransactions(func(body message.Payload) {
		h.enqueue(ctx, job{msg: message.Redis[message.Payload]{Body: body}})
	}); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	h.startLoop(ctx, &wg, "fetch loop", h.fetchLoop, errCh)
	h.startLoop(ctx, &wg, "claim loop", h.claimLoop, errCh)
	h.startLoop(ctx, &wg, "cleanup loop", h.cleanupLoop, errCh)
	for i := 0; i < h.executeWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.executeLoop(ctx)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}

	cancel()
	h.claimTicker.Stop()
	h.cleanupTicker.Stop()
	wg.Wait()
	return err
}

// enqueue hands j to the workers, giving up when ctx is done
func (h *HotPath) enqueue(ctx context.Context, j job) bool {
	select {
	case h.jobs <- j:
		h.metrics.InFlight.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *HotPath) enqueueBatch(ctx context.Context, batch message.Batch[message.Payload]) error {
	for _, msg := range batch.Items {
		if !h.enqueue(ctx, job{msg: msg, ackable: true}) {
			return ctx.Err()
		}
	}
	return nil
}

// fetchLoop reads new stream entries
func (h *HotPath) fetchLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		batch, err := h.stream.ReadBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.log.Error("Error reading batch: %v", err)
			select {
			case <-time.After(h.errorBackoff):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := h.enqueueBatch(ctx, batch); err != nil {
			return err
		}
	}
}

// claimLoop takes over entries left pending by crashed consumers and by
// failed publishes of this one
func (h *HotPath) claimLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.claimTicker.C:
			batch, err := h.stream.ClaimIdle(ctx)
			if err != nil {
				h.log.Error("Error claiming idle messages: %v", err)
				continue
			}
			if len(batch.Items) > 0 {
				h.log.Info("Claimed %d idle messages", len(batch.Items))
			}
			if err := h.enqueueBatch(ctx, batch); err != nil {
				return err
			}
		}
	}
}

// cleanupLoop removes consumers idle for longer than the configured timeout
func (h *HotPath) cleanupLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.cleanupTicker.C:
			removed, err := h.stream.CleanupDeadConsumers(ctx, h.consumerIdleTimeout)
			if err != nil {
				h.log.Error("Error cleaning up dead consumers: %v", err)
				continue
			}
			if removed > 0 {
				h.log.Info("Removed %d dead consumers", removed)
			}
		}
	}
}

// executeLoop runs jobs until ctx is done. Each worker owns its encoder.
func (h *HotPath) executeLoop(ctx context.Context) {
	b := jsonfast.New(512)
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-h.jobs:
			h.process(ctx, b, j)
			h.metrics.InFlight.Add(-1)
		}
	}
}

// process executes one delivery, publishes its result and acknowledges
// the entry. Stream entries whose result could not be published or whose
// commit failed stay pending for the claim loop.
func (h *HotPath) process(ctx context.Context, b *jsonfast.Builder, j job) {
	tx, err := message.ParseTransaction(j.msg.Body)
	if err != nil {
		h.log.WarnWithFields(logrus.Fields{"entry": j.msg.ID}, "Rejecting malformed transaction: %v", err)
		h.metrics.Rejected.With("code", "none").Add(1)
		res := message.NewResult(j.msg.ID, nil, err, h.exponent, h.now())
		if h.publish(ctx, res.AppendJSON(b)) {
			h.ack(j)
		}
		return
	}

	release, ok := h.reserve(ctx, tx.ID)
	if !ok {
		return
	}
	defer release()

	if cached, ok := h.dedup.Get(tx.ID); ok {
		h.metrics.Duplicates.Add(1)
		h.log.Debug("Transaction %s already executed, replaying result", tx.ID)
		if h.publish(ctx, cached.([]byte)) {
			h.ack(j)
		}
		return
	}

	start := time.Now()
	receipt, err := h.executor.Execute(ctx, tx)
	h.metrics.ExecSeconds.Observe(time.Since(start).Seconds())
	if err != nil && retryable(err) {
		if ctx.Err() != nil {
			return
		}
		if j.ackable {
			h.log.ErrorWithFields(logrus.Fields{"tx": tx.ID}, "Transaction not committed, leaving pending: %v", err)
			return
		}
		// MQTT deliveries are never redelivered; answer without caching so
		// a later delivery of the same id executes again.
		h.log.ErrorWithFields(logrus.Fields{"tx": tx.ID}, "Transaction not committed: %v", err)
		res := message.NewResult(tx.ID, nil, err, h.exponent, h.now())
		h.observe(res)
		h.publish(ctx, res.AppendJSON(b))
		return
	}

	res := message.NewResult(tx.ID, receipt, err, h.exponent, h.now())
	h.observe(res)
	payload := append([]byte(nil), res.AppendJSON(b)...)
	h.dedup.Add(tx.ID, payload)

	if h.publish(ctx, payload) {
		h.ack(j)
	}
}

// reserve makes the caller the only worker handling transaction id,
// waiting while another delivery of it is executing. It returns false when
// ctx ends first.
func (h *HotPath) reserve(ctx context.Context, id string) (func(), bool) {
	for {
		h.inflightMu.Lock()
		busy, held := h.inflight[id]
		if !held {
			done := make(chan struct{})
			h.inflight[id] = done
			h.inflightMu.Unlock()
			return func() {
				h.inflightMu.Lock()
				delete(h.inflight, id)
				h.inflightMu.Unlock()
				close(done)
			}, true
		}
		h.inflightMu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// retryable reports whether err left the transaction undecided. Decoding,
// validation and instruction failures are final; anything else, such as a
// failed commit or cancellation, is retried on redelivery.
func retryable(err error) bool {
	var execErr *ledger.ExecError
	switch {
	case errors.As(err, &execErr):
		return false
	case errors.Is(err, ledger.ErrEmptyTransaction), errors.Is(err, ledger.ErrTooManyInstruction):
		return false
	}
	return true
}

func (h *HotPath) observe(res message.Result) {
	if res.OK {
		h.metrics.Committed.With("action", res.Tag).Add(1)
		if res.Tag == engine.TagUpdate.String() {
			h.metrics.LastUpdate.Set(float64(res.TimestampUs) / 1e6)
		}
		return
	}
	code := "none"
	if res.Code != 0 {
		code = res.Code.String()
	}
	h.metrics.Rejected.With("code", code).Add(1)
	h.log.DebugWithFields(logrus.Fields{
		"tx":          res.ID,
		"code":        code,
		"instruction": strconv.Itoa(res.Instruction),
	}, "Transaction rejected: %s", res.Error)
}

func (h *HotPath) publish(ctx context.Context, payload []byte) bool {
	if err := h.mqtt.Publish(ctx, payload); err != nil {
		if ctx.Err() == nil {
			h.log.Error("Failed to publish result: %v", err)
		}
		return false
	}
	return true
}

func (h *HotPath) ack(j job) {
	if !j.ackable {
		return
	}
	ackCtx, cancel := context.WithTimeout(context.Background(), h.ackTimeout)
	defer cancel()
	if err := h.stream.AckAndDelete(ackCtx, j.msg); err != nil {
		h.log.Error("Failed to ACK message %s: %v", j.msg.ID, err)
	}
}

// Close stops the tickers
func (h *HotPath) Close() error {
	h.claimTicker.Stop()
	h.cleanupTicker.Stop()
	return nil
}
