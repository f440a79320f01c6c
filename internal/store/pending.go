package store

import "github.com/brilliant-build/bbuild/internal/model"

func pendingPrefix(color model.Color) byte {
	if color == model.Resource {
		return prefixPendingResource
	}
	return prefixPendingTask
}

// AddPending marks ref as pending (needing (re)scan or (re)execution).
func (tx *Tx) AddPending(ref model.VertexRef) error {
	return tx.set(pendingKey(pendingPrefix(ref.Color), ref.ID), nil)
}

// RemovePending clears ref's pending status.
func (tx *Tx) RemovePending(ref model.VertexRef) error {
	return tx.delete(pendingKey(pendingPrefix(ref.Color), ref.ID))
}

// IsPending reports whether ref is currently marked pending.
func (tx *Tx) IsPending(ref model.VertexRef) (bool, error) {
	return tx.exists(pendingKey(pendingPrefix(ref.Color), ref.ID))
}

// PendingResources returns every pending resource id in ascending order.
func (tx *Tx) PendingResources() ([]uint64, error) {
	return tx.pendingIDs(prefixPendingResource)
}

// PendingTasks returns every pending task id in ascending order.
func (tx *Tx) PendingTasks() ([]uint64, error) {
	return tx.pendingIDs(prefixPendingTask)
}

func (tx *Tx) pendingIDs(prefix byte) ([]uint64, error) {
	var out []uint64
	err := tx.forEachPrefix([]byte{prefix}, func(key, _ []byte) error {
		out = append(out, parseU64be(key[1:9]))
		return nil
	})
	return out, err
}
