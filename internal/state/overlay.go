package state

import (
	"context"
	"errors"
	"fmt"
)

// Overlay stages mutations on top of a Backend. Reads observe staged writes;
// nothing reaches the underlying Backend until Commit.
//
// Values read from the base are remembered, and Commit turns updates of
// those keys into compare-and-swap writes against what was read.
type Overlay struct {
	base    Backend
	staged  map[Key][]byte
	reads   map[Key][]byte
	pending []Mutation
}

// NewOverlay returns an Overlay over base.
func NewOverlay(base Backend) *Overlay {
	return &Overlay{base: base, staged: make(map[Key][]byte), reads: make(map[Key][]byte)}
}

// Get returns the staged value for key, falling back to the base backend.
func (o *Overlay) Get(ctx context.Context, key Key) ([]byte, error) {
	if v, ok := o.staged[key]; ok {
		return append([]byte(nil), v...), nil
	}
	v, err := o.base.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, ok := o.reads[key]; !ok {
		o.reads[key] = append([]byte(nil), v...)
	}
	return v, nil
}

// Apply stages mutations after checking them against the overlay view.
func (o *Overlay) Apply(ctx context.Context, mutations []Mutation) error {
	var lookupErr error
	err := CheckMutations(mutations, func(k Key) ([]byte, bool) {
		v, err := o.Get(ctx, k)
		if err != nil && !errors.Is(err, ErrNotFound) && lookupErr == nil {
			lookupErr = err
		}
		return v, err == nil
	})
	if lookupErr != nil {
		return fmt.Errorf("overlay lookup: %w", lookupErr)
	}
	if err != nil {
		return err
	}

	for _, mut := range mutations {
		o.staged[mut.Key] = append([]byte(nil), mut.Value...)
		o.pending = append(o.pending, Mutation{Kind: mut.Kind, Key: mut.Key, Value: o.staged[mut.Key]})
	}
	return nil
}

// Pending returns the number of staged mutations.
func (o *Overlay) Pending() int {
	return len(o.pending)
}

// Commit writes all staged mutations to the base backend in one Apply. It
// fails with ErrConflict if a record read through the overlay changed in
// the base since.
func (o *Overlay) Commit(ctx context.Context) error {
	if len(o.pending) == 0 {
		return nil
	}
	muts := collapse(o.pending)
	for i := range muts {
		if prior, ok := o.reads[muts[i].Key]; ok && muts[i].Kind == MutationUpdate {
			muts[i].Prior = prior
		}
	}
	if err := o.base.Apply(ctx, muts); err != nil {
		return err
	}
	o.Discard()
	return nil
}

// Discard drops all staged mutations.
func (o *Overlay) Discard() {
	o.staged = make(map[Key][]byte)
	o.reads = make(map[Key][]byte)
	o.pending = nil
}

// collapse merges repeated writes to one key into a single mutation that
// keeps the first kind and the last value.
func collapse(muts []Mutation) []Mutation {
	index := make(map[Key]int, len(muts))
	out := make([]Mutation, 0, len(muts))
	for _, m := range muts {
		if i, ok := index[m.Key]; ok {
			out[i].Value = m.Value
			continue
		}
		index[m.Key] = len(out)
		out = append(out, m)
	}
	return out
}
