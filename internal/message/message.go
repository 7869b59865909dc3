// Package message provides the wire forms exchanged with producers and
// result subscribers, and the stream envelopes used by the fetchers.
package message

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ibs-source/pricefeed-consumer/internal/engine"
	"github.com/ibs-source/pricefeed-consumer/internal/ledger"
	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
	"github.com/ibs-source/pricefeed-consumer/pkg/jsonfast"
)

// Payload is the canonical alias for raw message body
type Payload = []byte

// Redis is a strongly typed representation of Redis stream entries
type Redis[T any] struct {
	ID   string
	Body T
}

// Batch is an envelope returned by Redis fetchers
type Batch[T any] struct {
	Items []Redis[T]
}

// Transaction is the JSON form of a ledger transaction. Program ids and
// instruction data are hex encoded.
type Transaction struct {
	ID           string        `json:"id"`
	Instructions []Instruction `json:"instructions"`
}

// Instruction is the JSON form of a ledger instruction
type Instruction struct {
	Program string `json:"program"`
	Data    string `json:"data"`
}

// ErrMissingID is returned for transactions without an id; the id is the
// deduplication key.
var ErrMissingID = errors.New("transaction id is required")

// FromLedger converts tx to its wire form
func FromLedger(tx *ledger.Transaction) Transaction {
	out := Transaction{ID: tx.ID, Instructions: make([]Instruction, len(tx.Instructions))}
	for i, ix := range tx.Instructions {
		out.Instructions[i] = Instruction{Program: ix.Program.String(), Data: hex.EncodeToString(ix.Data)}
	}
	return out
}

// Ledger converts t back to a ledger transaction
func (t Transaction) Ledger() (*ledger.Transaction, error) {
	if t.ID == "" {
		return nil, ErrMissingID
	}
	tx := &ledger.Transaction{ID: t.ID, Instructions: make([]ledger.Instruction, len(t.Instructions))}
	for i, ix := range t.Instructions {
		program, err := ledger.ParseProgramID(ix.Program)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		data, err := hex.DecodeString(ix.Data)
		if err != nil {
			return nil, fmt.Errorf("instruction %d data: %w", i, err)
		}
		tx.Instructions[i] = ledger.Instruction{Program: program, Data: data}
	}
	return tx, nil
}

// ParseTransaction decodes a JSON transaction
func ParseTransaction(body Payload) (*ledger.Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return t.Ledger()
}

// EncodeTransaction encodes tx as JSON
func EncodeTransaction(tx *ledger.Transaction) (Payload, error) {
	return json.Marshal(FromLedger(tx))
}

// Result reports the outcome of one transaction to subscribers.
// Instruction is -1 unless a specific instruction aborted the transaction,
// in which case Program names the program that ran it.
type Result struct {
	ID          string
	OK          bool
	Code        engine.Code
	Error       string
	Instruction int
	Program     ledger.ProgramID
	Tag         string
	FeedID      protocol.FeedID
	TimestampUs uint64
	Price       protocol.Price
	Exponent    int32
	ProcessedAt time.Time
}

// NewResult summarizes the receipt or the error returned by the runtime
// for transaction id.
func NewResult(id string, receipt *ledger.Receipt, err error, exponent int32, now time.Time) Result {
	r := Result{ID: id, Instruction: -1, Exponent: exponent, ProcessedAt: now}
	if err != nil {
		r.Error = err.Error()
		if code, ok := engine.CodeOf(err); ok {
			r.Code = code
		}
		var execErr *ledger.ExecError
		if errors.As(err, &execErr) {
			r.Instruction = execErr.Index
			r.Program = execErr.Program
		}
		return r
	}
	r.OK = true
	if receipt == nil {
		return r
	}
	for _, ev := range receipt.Events {
		if out, ok := ev.Data.(engine.Outcome); ok {
			r.Tag = out.Tag.String()
			r.FeedID = out.FeedID
			r.TimestampUs = out.TimestampUs
			r.Price = out.Price
		}
	}
	return r
}

// AppendJSON encodes r into b and returns the encoded bytes, which alias
// b's buffer.
func (r Result) AppendJSON(b *jsonfast.Builder) []byte {
	b.Reset()
	b.BeginObject()
	b.AddStringField("id", r.ID)
	b.AddBoolField("ok", r.OK)
	if !r.OK {
		b.AddUintField("code", uint64(r.Code))
		if r.Code != 0 {
			b.AddStringField("code_name", r.Code.String())
		}
		b.AddStringField("error", r.Error)
		b.AddIntField("instruction", int64(r.Instruction))
		if r.Instruction >= 0 {
			b.AddHexField("program", r.Program[:])
		}
	} else if r.Tag != "" {
		b.AddStringField("action", r.Tag)
		b.AddUintField("feed_id", uint64(r.FeedID))
		if r.Tag == engine.TagUpdate.String() {
			b.AddUintField("timestamp_us", r.TimestampUs)
			b.AddIntField("price", int64(r.Price))
			b.AddStringField("price_decimal", r.Price.Decimal(r.Exponent).String())
		}
	}
	b.AddTimeRFC3339Field("processed_at", r.ProcessedAt)
	b.EndObject()
	return b.Bytes()
}
