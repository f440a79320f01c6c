// Package store implements the StateStore: a transactional key/value store,
// kept in one Badger data directory, holding the full persisted state of one build — vertices,
// edges, pending sets and the description fingerprint (spec §4.1). It is
// backed by BadgerDB, in the prefixed-key-table style of the graph-database
// storage layer this package is grounded on, generalized from a single
// vertex/edge table to the bipartite Resource/Task schema.
package store

import (
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/model"
)

// ErrNotFound is returned by lookups and natural-key finds when no matching
// vertex exists. It is a store-local sentinel, distinct from the §7 error
// kinds: callers decide whether a miss is expected (sync reconciliation) or
// exceptional (surface as berrors.InvalidEdgef/IOf).
var ErrNotFound = errors.New("store: not found")

// Store is a handle to one build's persisted state, backed by a single
// Badger data directory. The zero value is not usable; construct with Open.
type Store struct {
	db *badger.DB
}

// Options configures Open.
type Options struct {
	// Dir is the Badger data directory. Created if it does not exist.
	Dir string
	// InMemory runs the store without touching disk, for tests.
	InMemory bool
	// SyncWrites forces an fsync on every commit. It is off unless set (the
	// zero value is false); the CLI sets it, throwaway test stores leave it
	// off.
	SyncWrites bool
}

// Open opens (creating if necessary) the store at opts.Dir, initializing the
// reserved description resource and the resource id counter on first use.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	bopts = bopts.WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, berrors.WrapIO(err, "open store at %q", opts.Dir)
	}
	s := &Store{db: db}
	if err := s.ensureDescription(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying data file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return berrors.WrapIO(err, "close store")
	}
	return nil
}

// Update runs fn in a single read-write transaction, committing on a nil
// return and rolling back (discarding) otherwise. This is the store's only
// write path, matching the begin/commit/rollback discipline of §4.1.
func (s *Store) Update(fn func(tx *Tx) error) error {
	return s.db.Update(func(btx *badger.Txn) error {
		return fn(&Tx{btx: btx})
	})
}

// View runs fn in a read-only transaction over a consistent snapshot.
func (s *Store) View(fn func(tx *Tx) error) error {
	return s.db.View(func(btx *badger.Txn) error {
		return fn(&Tx{btx: btx})
	})
}

// ensureDescription creates the reserved id=1 description resource (path
// empty, status unknown, checksum nil) and seeds the resource id counter to
// 1, iff the description resource does not already exist. The task id
// counter is not seeded; the first task id allocated is 1.
func (s *Store) ensureDescription() error {
	return s.Update(func(tx *Tx) error {
		_, err := tx.LookupResource(model.DescriptionResourceID)
		if err == nil {
			return nil
		}
		if err != ErrNotFound {
			return err
		}
		return tx.seedDescription()
	})
}
