package store

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/brilliant-build/bbuild/internal/berrors"
)

// Tx is a single Badger transaction, scoped to the lifetime of one
// Store.Update/View callback. It must not be retained past that call.
type Tx struct {
	btx *badger.Txn
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	item, err := tx.btx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, berrors.WrapIO(err, "get key")
	}
	var val []byte
	err = item.Value(func(v []byte) error {
		val = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, berrors.WrapIO(err, "read value")
	}
	return val, nil
}

func (tx *Tx) set(key, val []byte) error {
	if err := tx.btx.Set(key, val); err != nil {
		return berrors.WrapIO(err, "set key")
	}
	return nil
}

func (tx *Tx) delete(key []byte) error {
	if err := tx.btx.Delete(key); err != nil {
		return berrors.WrapIO(err, "delete key")
	}
	return nil
}

func (tx *Tx) exists(key []byte) (bool, error) {
	_, err := tx.btx.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, berrors.WrapIO(err, "check key")
	}
	return true, nil
}

// forEachPrefix iterates all keys with the given prefix in lexicographic
// (ascending) order, invoking fn with the full key and value for each.
func (tx *Tx) forEachPrefix(prefix []byte, fn func(key, val []byte) error) error {
	it := tx.btx.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := append([]byte(nil), item.Key()...)
		var val []byte
		if err := item.Value(func(v []byte) error {
			val = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return berrors.WrapIO(err, "iterate value")
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) nextID(counterKey []byte) (uint64, error) {
	raw, err := tx.get(counterKey)
	var next uint64
	switch err {
	case nil:
		next = parseU64be(raw) + 1
	case ErrNotFound:
		next = 1
	default:
		return 0, err
	}
	if err := tx.set(counterKey, u64be(next)); err != nil {
		return 0, err
	}
	return next, nil
}
