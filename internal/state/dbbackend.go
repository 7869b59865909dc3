package state

import (
	"context"
	"fmt"
	"sync"

	dbm "github.com/tendermint/tm-db"
)

// DBBackend stores records in an embedded tm-db database.
//
// Safe for concurrent use by multiple goroutines.
type DBBackend struct {
	db     dbm.DB
	prefix []byte
	mtx    sync.Mutex
}

// NewDBBackend wraps db. Keys are namespaced under prefix so one database
// can hold the records of several programs.
func NewDBBackend(db dbm.DB, prefix string) *DBBackend {
	return &DBBackend{db: db, prefix: []byte(prefix)}
}

// OpenDBBackend opens (or creates) a goleveldb database called name in dir.
func OpenDBBackend(name, dir, prefix string) (*DBBackend, error) {
	db, err := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, fmt.Errorf("open %s in %s: %w", name, dir, err)
	}
	return NewDBBackend(db, prefix), nil
}

func (s *DBBackend) dbKey(k Key) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	out = append(out, s.prefix...)
	return append(out, k[:]...)
}

// Get loads the record stored at key.
func (s *DBBackend) Get(_ context.Context, key Key) ([]byte, error) {
	bz, err := s.db.Get(s.dbKey(key))
	if err != nil {
		return nil, fmt.Errorf("db get %s: %w", key, err)
	}
	if bz == nil {
		return nil, ErrNotFound
	}
	return bz, nil
}

// Apply checks every mutation against the stored values and then writes
// them in one synced batch.
func (s *DBBackend) Apply(_ context.Context, mutations []Mutation) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var getErr error
	err := CheckMutations(mutations, func(k Key) ([]byte, bool) {
		bz, err := s.db.Get(s.dbKey(k))
		if err != nil && getErr == nil {
			getErr = err
		}
		return bz, bz != nil
	})
	if getErr != nil {
		return fmt.Errorf("db get: %w", getErr)
	}
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	for _, mut := range mutations {
		if err := b.Set(s.dbKey(mut.Key), mut.Value); err != nil {
			return fmt.Errorf("batch set %s: %w", mut.Key, err)
		}
	}
	if err := b.WriteSync(); err != nil {
		return fmt.Errorf("batch write: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *DBBackend) Close() error {
	return s.db.Close()
}
