package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ibs-source/pricefeed-consumer/internal/state"
)

// Introspector gives an executing instruction read access to its siblings
// within the same transaction. A sibling present in an executing
// transaction has either already run successfully or will run before the
// transaction commits.
type Introspector interface {
	CurrentIndex() uint16
	InstructionAt(index uint16) (Instruction, error)
}

// Invocation is what a program sees while processing one instruction.
type Invocation struct {
	TxID    string
	Index   uint16
	Program ProgramID
	Tx      Introspector
	// Store is staged: writes become durable only if the whole
	// transaction succeeds.
	Store state.Backend

	events *[]Event
}

// Emit records an event that is returned with the receipt if the
// transaction commits.
func (inv *Invocation) Emit(data interface{}) {
	if inv.events == nil {
		return
	}
	*inv.events = append(*inv.events, Event{Index: int(inv.Index), Program: inv.Program, Data: data})
}

// Event is a value emitted by an instruction of a committed transaction.
type Event struct {
	Index   int
	Program ProgramID
	Data    interface{}
}

// Program processes instructions addressed to it.
type Program interface {
	Process(ctx context.Context, inv *Invocation, data []byte) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(ctx context.Context, inv *Invocation, data []byte) error

// Process calls f.
func (f ProgramFunc) Process(ctx context.Context, inv *Invocation, data []byte) error {
	return f(ctx, inv, data)
}

// Receipt describes a committed transaction.
type Receipt struct {
	ID           string
	Instructions int
	Writes       int
	Events       []Event
}

// maxConflictRetries bounds re-execution of a transaction whose commit
// found a record changed by another writer of the same backend.
const maxConflictRetries = 3

// Runtime executes transactions against a state backend. Transactions are
// executed one at a time by a Runtime; writers sharing the backend are
// detected at commit and the transaction is executed again on fresh state.
type Runtime struct {
	mu       sync.Mutex
	programs map[ProgramID]Program
	backend  state.Backend
}

// NewRuntime returns a Runtime persisting to backend.
func NewRuntime(backend state.Backend) *Runtime {
	return &Runtime{programs: make(map[ProgramID]Program), backend: backend}
}

// Register installs p under id, replacing any previous program.
func (r *Runtime) Register(id ProgramID, p Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = p
}

// Execute runs every instruction of tx in order. On the first failure the
// staged writes are dropped and an *ExecError is returned; otherwise all
// writes are committed in one step.
func (r *Runtime) Execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	if len(tx.Instructions) == 0 {
		return nil, ErrEmptyTransaction
	}
	if len(tx.Instructions) > MaxInstructions {
		return nil, ErrTooManyInstruction
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; ; attempt++ {
		receipt, err := r.execute(ctx, tx)
		if err == nil || attempt == maxConflictRetries || !errors.Is(err, state.ErrConflict) {
			return receipt, err
		}
	}
}

func (r *Runtime) execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	overlay := state.NewOverlay(r.backend)
	var events []Event
	for i, ix := range tx.Instructions {
		if err := ctx.Err(); err != nil {
			overlay.Discard()
			return nil, err
		}
		prog, ok := r.programs[ix.Program]
		if !ok {
			overlay.Discard()
			return nil, &ExecError{Index: i, Program: ix.Program, Err: ErrUnknownProgram}
		}
		inv := &Invocation{
			TxID:    tx.ID,
			Index:   uint16(i), // #nosec G115 - bounded by MaxInstructions
			Program: ix.Program,
			Tx:      &txView{tx: tx, current: uint16(i)}, // #nosec G115
			Store:   overlay,
			events:  &events,
		}
		if err := prog.Process(ctx, inv, ix.Data); err != nil {
			overlay.Discard()
			return nil, &ExecError{Index: i, Program: ix.Program, Err: err}
		}
	}

	writes := overlay.Pending()
	if err := overlay.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction %s: %w", tx.ID, err)
	}
	return &Receipt{ID: tx.ID, Instructions: len(tx.Instructions), Writes: writes, Events: events}, nil
}

type txView struct {
	tx      *Transaction
	current uint16
}

func (v *txView) CurrentIndex() uint16 {
	return v.current
}

func (v *txView) InstructionAt(index uint16) (Instruction, error) {
	if int(index) >= len(v.tx.Instructions) {
		return Instruction{}, fmt.Errorf("%w: %d of %d", ErrInstructionIndex, index, len(v.tx.Instructions))
	}
	ix := v.tx.Instructions[index]
	return Instruction{Program: ix.Program, Data: append([]byte(nil), ix.Data...)}, nil
}
