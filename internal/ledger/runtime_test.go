package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibs-source/pricefeed-consumer/internal/state"
)

var (
	writerID = ProgramIDFromName("writer")
	failerID = ProgramIDFromName("failer")
	errBoom  = errors.New("boom")
)

func newTestRuntime(backend state.Backend) *Runtime {
	rt := NewRuntime(backend)
	rt.Register(writerID, ProgramFunc(func(ctx context.Context, inv *Invocation, data []byte) error {
		key := state.DeriveKey(inv.Program, 1)
		return inv.Store.Apply(ctx, []state.Mutation{{Kind: state.MutationCreate, Key: key, Value: data}})
	}))
	rt.Register(failerID, ProgramFunc(func(context.Context, *Invocation, []byte) error {
		return errBoom
	}))
	return rt
}

func TestRuntime_Commit(t *testing.T) {
	backend := state.NewMemoryBackend()
	rt := newTestRuntime(backend)

	receipt, err := rt.Execute(context.Background(), &Transaction{
		ID:           "tx-1",
		Instructions: []Instruction{{Program: writerID, Data: []byte("v")}},
	})
	require.NoError(t, err)
	assert.Equal(t, &Receipt{ID: "tx-1", Instructions: 1, Writes: 1}, receipt)
	assert.Equal(t, 1, backend.Len())
}

func TestRuntime_FailureLeavesStateUntouched(t *testing.T) {
	backend := state.NewMemoryBackend()
	rt := newTestRuntime(backend)

	_, err := rt.Execute(context.Background(), &Transaction{
		Instructions: []Instruction{
			{Program: writerID, Data: []byte("v")},
			{Program: failerID},
		},
	})
	require.ErrorIs(t, err, errBoom)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.Index)
	assert.Equal(t, failerID, execErr.Program)
	assert.Equal(t, 0, backend.Len())
}

func TestRuntime_Rejections(t *testing.T) {
	rt := newTestRuntime(state.NewMemoryBackend())
	ctx := context.Background()

	_, err := rt.Execute(ctx, &Transaction{})
	assert.ErrorIs(t, err, ErrEmptyTransaction)

	_, err = rt.Execute(ctx, &Transaction{Instructions: make([]Instruction, MaxInstructions+1)})
	assert.ErrorIs(t, err, ErrTooManyInstruction)

	_, err = rt.Execute(ctx, &Transaction{Instructions: []Instruction{{Program: ProgramIDFromName("nobody")}}})
	assert.ErrorIs(t, err, ErrUnknownProgram)
}

func TestRuntime_Introspection(t *testing.T) {
	rt := NewRuntime(state.NewMemoryBackend())
	var seen []Instruction
	var current uint16
	probe := ProgramIDFromName("probe")
	rt.Register(writerID, ProgramFunc(func(context.Context, *Invocation, []byte) error { return nil }))
	rt.Register(probe, ProgramFunc(func(_ context.Context, inv *Invocation, _ []byte) error {
		current = inv.Tx.CurrentIndex()
		for i := uint16(0); ; i++ {
			ix, err := inv.Tx.InstructionAt(i)
			if errors.Is(err, ErrInstructionIndex) {
				return nil
			}
			if err != nil {
				return err
			}
			seen = append(seen, ix)
		}
	}))

	tx := &Transaction{Instructions: []Instruction{
		{Program: writerID, Data: []byte{1, 2}},
		{Program: probe, Data: []byte{3}},
	}}
	_, err := rt.Execute(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), current)
	assert.Equal(t, tx.Instructions, seen)
}

func TestProgramID(t *testing.T) {
	id := ProgramIDFromName("consumer")
	parsed, err := ParseProgramID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.False(t, id.IsZero())
	assert.NotEqual(t, Ed25519VerifierID, Secp256k1VerifierID)

	_, err = ParseProgramID("abcd")
	assert.Error(t, err)
	_, err = ParseProgramID("zz")
	assert.Error(t, err)
}

func TestRuntime_EventsOnlyOnCommit(t *testing.T) {
	rt := newTestRuntime(state.NewMemoryBackend())
	emitter := ProgramIDFromName("emitter")
	rt.Register(emitter, ProgramFunc(func(_ context.Context, inv *Invocation, data []byte) error {
		inv.Emit(string(data))
		return nil
	}))
	ctx := context.Background()

	receipt, err := rt.Execute(ctx, &Transaction{Instructions: []Instruction{
		{Program: emitter, Data: []byte("a")},
		{Program: emitter, Data: []byte("b")},
	}})
	require.NoError(t, err)
	assert.Equal(t, []Event{
		{Index: 0, Program: emitter, Data: "a"},
		{Index: 1, Program: emitter, Data: "b"},
	}, receipt.Events)

	receipt, err = rt.Execute(ctx, &Transaction{Instructions: []Instruction{
		{Program: emitter, Data: []byte("a")},
		{Program: failerID},
	}})
	require.Error(t, err)
	assert.Nil(t, receipt)
}

var (
	counterID = ProgramIDFromName("counter")
	errStale  = errors.New("stale")
)

func encodeCounter(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// newCounterRuntime runs a program that only moves the counter forward.
// between is called after the check and before the write.
func newCounterRuntime(backend state.Backend, between func()) *Runtime {
	rt := NewRuntime(backend)
	rt.Register(counterID, ProgramFunc(func(ctx context.Context, inv *Invocation, data []byte) error {
		key := state.DeriveKey(inv.Program, 1)
		cur, err := inv.Store.Get(ctx, key)
		if err != nil {
			return err
		}
		if binary.BigEndian.Uint64(data) <= binary.BigEndian.Uint64(cur) {
			return errStale
		}
		between()
		return inv.Store.Apply(ctx, []state.Mutation{{Kind: state.MutationUpdate, Key: key, Value: data}})
	}))
	return rt
}

func counterTx(v uint64) *Transaction {
	return &Transaction{ID: "counter", Instructions: []Instruction{{Program: counterID, Data: encodeCounter(v)}}}
}

func seedCounter(t *testing.T, backend state.Backend, v uint64) state.Key {
	t.Helper()
	key := state.DeriveKey(counterID, 1)
	require.NoError(t, backend.Apply(context.Background(), []state.Mutation{
		{Kind: state.MutationCreate, Key: key, Value: encodeCounter(v)},
	}))
	return key
}

func TestRuntime_SharedBackendKeepsCounterMonotonic(t *testing.T) {
	ctx := context.Background()
	backend := state.NewMemoryBackend()
	key := seedCounter(t, backend, 10)

	other := newCounterRuntime(backend, func() {})
	var once sync.Once
	calls := 0
	rt := newCounterRuntime(backend, func() {
		calls++
		// another daemon commits a newer value after this one has checked
		once.Do(func() {
			_, err := other.Execute(ctx, counterTx(20))
			require.NoError(t, err)
		})
	})

	_, err := rt.Execute(ctx, counterTx(15))
	require.ErrorIs(t, err, errStale)
	var execErr *ExecError
	assert.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, calls)

	v, err := backend.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, encodeCounter(20), v)
}

func TestRuntime_RetriesConflictOnFreshState(t *testing.T) {
	ctx := context.Background()
	backend := state.NewMemoryBackend()
	key := seedCounter(t, backend, 10)

	other := newCounterRuntime(backend, func() {})
	var once sync.Once
	rt := newCounterRuntime(backend, func() {
		once.Do(func() {
			_, err := other.Execute(ctx, counterTx(20))
			require.NoError(t, err)
		})
	})

	receipt, err := rt.Execute(ctx, counterTx(30))
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Writes)

	v, err := backend.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, encodeCounter(30), v)
}

func TestRuntime_ConflictRetriesAreBounded(t *testing.T) {
	ctx := context.Background()
	backend := state.NewMemoryBackend()
	seedCounter(t, backend, 10)

	other := newCounterRuntime(backend, func() {})
	next := uint64(100)
	attempts := 0
	rt := newCounterRuntime(backend, func() {
		attempts++
		next++
		_, err := other.Execute(ctx, counterTx(next))
		require.NoError(t, err)
	})

	_, err := rt.Execute(ctx, counterTx(1000))
	require.ErrorIs(t, err, state.ErrConflict)
	var execErr *ExecError
	assert.False(t, errors.As(err, &execErr))
	assert.Equal(t, maxConflictRetries+1, attempts)
}
