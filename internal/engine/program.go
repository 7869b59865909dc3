// Package engine is the consumer program: it decodes consumer
// instructions, proves the signature coverage of update payloads and
// applies them to the feed record under the update invariants.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/linkage"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/internal/state"
)

// Config describes one consumer instance.
type Config struct {
	ProgramID ledger.ProgramID
	FeedID    protocol.FeedID
	Channel   protocol.Channel
	Validator linkage.Validator
}

// Outcome is emitted for every instruction the program accepts.
type Outcome struct {
	Tag         Tag
	FeedID      protocol.FeedID
	TimestampUs uint64
	Price       protocol.Price
}

// Program implements ledger.Program for one consumer instance.
type Program struct {
	cfg     Config
	checker Checker
	log     *log.Logger
}

var _ ledger.Program = (*Program)(nil)

// NewProgram validates cfg and returns the program.
func NewProgram(cfg Config, logger *log.Logger) (*Program, error) {
	if cfg.ProgramID.IsZero() {
		return nil, errors.New("engine: program id is required")
	}
	if cfg.Validator == nil {
		return nil, errors.New("engine: validator is required")
	}
	if !cfg.Channel.Known() {
		return nil, fmt.Errorf("engine: unknown channel %d", uint16(cfg.Channel))
	}
	if logger == nil {
		logger = log.New()
	}
	return &Program{
		cfg:     cfg,
		checker: Checker{Channel: cfg.Channel, FeedID: cfg.FeedID},
		log:     logger,
	}, nil
}

// ID returns the program id the instance is registered under.
func (p *Program) ID() ledger.ProgramID {
	return p.cfg.ProgramID
}

// Handle returns the record handle of the configured feed.
func (p *Program) Handle() state.Handle {
	return state.Handle{Key: state.DeriveKey(p.cfg.ProgramID, p.cfg.FeedID), FeedID: p.cfg.FeedID}
}

// Process decodes data and runs the instruction it names.
func (p *Program) Process(ctx context.Context, inv *ledger.Invocation, data []byte) error {
	ix, err := DecodeInstruction(data)
	if err != nil {
		p.rejected(inv, nil, err)
		return err
	}
	out, err := ix.execute(ctx, p, inv)
	if err != nil {
		p.rejected(inv, ix, err)
		return err
	}
	inv.Emit(out)
	p.log.DebugWithFields(logrus.Fields{
		"instruction":  ix.Tag().String(),
		"feed_id":      out.FeedID,
		"timestamp_us": out.TimestampUs,
	}, "instruction accepted")
	return nil
}

func (a CreateArgs) execute(ctx context.Context, p *Program, inv *ledger.Invocation) (Outcome, error) {
	if a.FeedID != p.cfg.FeedID {
		return Outcome{}, reject(CodeInvalidInstruction, StageNone,
			"create names feed %d, instance serves %d", a.FeedID, p.cfg.FeedID)
	}
	adapter := state.NewAdapter(inv.Store, p.cfg.ProgramID)
	if _, err := adapter.Create(ctx, a.FeedID); err != nil {
		return Outcome{}, storeError(err)
	}
	return Outcome{Tag: TagCreate, FeedID: a.FeedID}, nil
}

func (a UpdateArgs) execute(ctx context.Context, p *Program, inv *ledger.Invocation) (Outcome, error) {
	body, err := p.cfg.Validator.Link(inv.Tx, linkage.Request{
		VerifierIndex:  a.VerifierIndex,
		SignatureIndex: a.SignatureIndex,
		MessageOffset:  EnvelopeOffset,
		Message:        a.Envelope,
	})
	if err != nil {
		if errors.Is(err, linkage.ErrInvalidMessage) {
			return Outcome{}, wrap(CodeInvalidMessage, err)
		}
		return Outcome{}, err
	}

	payload, err := protocol.Decode(body)
	if err != nil {
		return Outcome{}, &Error{Code: CodeInvalidPayload, Stage: StageDecoded, Err: err}
	}

	adapter := state.NewAdapter(inv.Store, p.cfg.ProgramID)
	h := adapter.HandleFor(p.cfg.FeedID)
	cur, err := adapter.Read(ctx, h)
	if err != nil {
		return Outcome{}, storeError(err)
	}

	next, err := p.checker.Check(cur, payload)
	if err != nil {
		return Outcome{}, err
	}
	if err := adapter.Write(ctx, h, next); err != nil {
		return Outcome{}, storeError(err)
	}
	return Outcome{
		Tag:         TagUpdate,
		FeedID:      next.FeedID,
		TimestampUs: next.LatestTimestampUs,
		Price:       next.LatestPrice,
	}, nil
}

// storeError maps record store failures onto codes. Backend faults pass
// through untouched.
func storeError(err error) error {
	switch {
	case errors.Is(err, state.ErrAlreadyExists):
		return wrap(CodeAlreadyExists, err)
	case errors.Is(err, state.ErrNotFound):
		return wrap(CodeStateNotFound, err)
	default:
		return err
	}
}

func (p *Program) rejected(inv *ledger.Invocation, ix Instruction, err error) {
	fields := logrus.Fields{
		"tx":      inv.TxID,
		"index":   inv.Index,
		"feed_id": p.cfg.FeedID,
	}
	if ix != nil {
		fields["instruction"] = ix.Tag().String()
	}
	var e *Error
	if errors.As(err, &e) {
		fields["code"] = e.Code.String()
		if e.Stage != StageNone {
			fields["stage"] = e.Stage.String()
		}
		p.log.WarnWithFields(fields, "instruction rejected: %v", err)
		return
	}
	p.log.ErrorWithFields(fields, "instruction failed: %v", err)
}
