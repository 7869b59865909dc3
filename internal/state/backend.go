package state

import (
	"context"
	"errors"
)

// Backend errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrCorrupt       = errors.New("corrupt record")
	// ErrConflict reports that a record changed after it was read.
	ErrConflict = errors.New("record changed since it was read")
)

// MutationKind distinguishes record creation from record replacement.
type MutationKind uint8

// Mutation kinds.
const (
	// MutationCreate fails with ErrAlreadyExists when the key is present.
	MutationCreate MutationKind = iota + 1
	// MutationUpdate fails with ErrNotFound when the key is absent, and with
	// ErrConflict when Prior is set and no longer matches the stored value.
	MutationUpdate
)

// Mutation is one staged write.
type Mutation struct {
	Kind  MutationKind
	Key   Key
	Value []byte
	// Prior is the value the update was computed from. Nil skips the
	// comparison.
	Prior []byte
}

// Backend is the boundary between the engine and persistent storage.
// Apply must be all-or-nothing: either every mutation is visible afterwards
// or none is.
type Backend interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Apply(ctx context.Context, mutations []Mutation) error
}
