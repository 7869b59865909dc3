package state

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[Key][]byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[Key][]byte)}
}

// Get returns a copy of the record stored at key.
func (m *MemoryBackend) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Apply validates every mutation before writing any of them.
func (m *MemoryBackend) Apply(_ context.Context, mutations []Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := CheckMutations(mutations, func(k Key) ([]byte, bool) {
		v, ok := m.records[k]
		return v, ok
	}); err != nil {
		return err
	}
	for _, mut := range mutations {
		m.records[mut.Key] = append([]byte(nil), mut.Value...)
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// CheckMutations verifies mutations against the stored values reported by
// lookup, tracking values written earlier in the same batch.
func CheckMutations(mutations []Mutation, lookup func(Key) ([]byte, bool)) error {
	written := make(map[Key][]byte)
	for _, mut := range mutations {
		current, present := written[mut.Key]
		inBatch := present
		if !inBatch {
			current, present = lookup(mut.Key)
		}
		switch mut.Kind {
		case MutationCreate:
			if present {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, mut.Key)
			}
		case MutationUpdate:
			if !present {
				return fmt.Errorf("%w: %s", ErrNotFound, mut.Key)
			}
			if mut.Prior != nil && !inBatch && !bytes.Equal(current, mut.Prior) {
				return fmt.Errorf("%w: %s", ErrConflict, mut.Key)
			}
		default:
			return fmt.Errorf("unknown mutation kind %d", mut.Kind)
		}
		written[mut.Key] = mut.Value
	}
	return nil
}
