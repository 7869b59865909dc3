package state

import (
	"context"
	"fmt"

	"github.com/ibs-source/pricefeed-consumer/internal/protocol"
)

// Handle addresses the record of one consumer instance.
type Handle struct {
	Key    Key
	FeedID protocol.FeedID
}

// Adapter reads and writes ConsumerState records through a Backend.
type Adapter struct {
	backend Backend
	program [32]byte
}

// NewAdapter returns an Adapter for records owned by program.
func NewAdapter(backend Backend, program [32]byte) *Adapter {
	return &Adapter{backend: backend, program: program}
}

// HandleFor returns the handle of feed's record without touching storage.
func (a *Adapter) HandleFor(feed protocol.FeedID) Handle {
	return Handle{Key: DeriveKey(a.program, feed), FeedID: feed}
}

// Create stores the initial record for feed. It fails with ErrAlreadyExists
// if the record was created before.
func (a *Adapter) Create(ctx context.Context, feed protocol.FeedID) (Handle, error) {
	h := a.HandleFor(feed)
	rec, err := ConsumerState{FeedID: feed}.MarshalBinary()
	if err != nil {
		return Handle{}, err
	}
	if err := a.backend.Apply(ctx, []Mutation{{Kind: MutationCreate, Key: h.Key, Value: rec}}); err != nil {
		return Handle{}, err
	}
	return h, nil
}

// Read loads the record behind h.
func (a *Adapter) Read(ctx context.Context, h Handle) (ConsumerState, error) {
	b, err := a.backend.Get(ctx, h.Key)
	if err != nil {
		return ConsumerState{}, err
	}
	var s ConsumerState
	if err := s.UnmarshalBinary(b); err != nil {
		return ConsumerState{}, err
	}
	if s.FeedID != h.FeedID {
		return ConsumerState{}, fmt.Errorf("%w: record holds feed %d, handle names %d", ErrCorrupt, s.FeedID, h.FeedID)
	}
	return s, nil
}

// Write replaces the record behind h. It never creates a record, and the
// feed id of a record cannot change.
func (a *Adapter) Write(ctx context.Context, h Handle, s ConsumerState) error {
	if s.FeedID != h.FeedID {
		return fmt.Errorf("%w: cannot rewrite feed %d as %d", ErrCorrupt, h.FeedID, s.FeedID)
	}
	rec, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	return a.backend.Apply(ctx, []Mutation{{Kind: MutationUpdate, Key: h.Key, Value: rec}})
}
