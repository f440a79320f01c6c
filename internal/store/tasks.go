package store

import (
	"encoding/json"
	"time"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/model"
)

type taskDoc struct {
	ID               uint64     `json:"id"`
	Commands         [][]string `json:"commands"`
	WorkingDirectory string     `json:"working_directory"`
	Display          string     `json:"display,omitempty"`
	LastExecuted     time.Time  `json:"last_executed"`
}

func encodeTask(t *model.TaskRecord) ([]byte, error) {
	b, err := json.Marshal(taskDoc{
		ID:               t.ID,
		Commands:         t.Commands,
		WorkingDirectory: t.WorkingDirectory,
		Display:          t.Display,
		LastExecuted:     t.LastExecuted,
	})
	if err != nil {
		return nil, berrors.WrapIO(err, "encode task %d", t.ID)
	}
	return b, nil
}

func decodeTask(b []byte) (*model.TaskRecord, error) {
	var doc taskDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, berrors.WrapIO(err, "decode task")
	}
	return &model.TaskRecord{
		ID:               doc.ID,
		Commands:         doc.Commands,
		WorkingDirectory: doc.WorkingDirectory,
		Display:          doc.Display,
		LastExecuted:     doc.LastExecuted,
	}, nil
}

// LookupTask returns the task with the given id, or ErrNotFound.
func (tx *Tx) LookupTask(id uint64) (*model.TaskRecord, error) {
	raw, err := tx.get(taskRecordKey(id))
	if err != nil {
		return nil, err
	}
	return decodeTask(raw)
}

// FindTaskByKey returns the id of the task whose natural key (commands,
// working directory) matches key, or ErrNotFound.
func (tx *Tx) FindTaskByKey(key model.TaskKey) (uint64, error) {
	raw, err := tx.get(taskKeyIndexKey(key))
	if err != nil {
		return 0, err
	}
	return parseU64be(raw), nil
}

// AddTask inserts a new task vertex and returns its assigned id. The
// natural key must not already exist.
func (tx *Tx) AddTask(rec *model.TaskRecord) (uint64, error) {
	key := rec.NaturalKey()
	if _, err := tx.FindTaskByKey(key); err == nil {
		return 0, berrors.InvalidEdgef("task already exists for key %q", key)
	} else if err != ErrNotFound {
		return 0, err
	}
	id, err := tx.nextID(counterTaskKey)
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, tx.putTask(rec)
}

func (tx *Tx) putTask(rec *model.TaskRecord) error {
	enc, err := encodeTask(rec)
	if err != nil {
		return err
	}
	if err := tx.set(taskRecordKey(rec.ID), enc); err != nil {
		return err
	}
	return tx.set(taskKeyIndexKey(rec.NaturalKey()), u64be(rec.ID))
}

// UpdateTask overwrites the stored record for an existing task. The natural
// key is immutable: callers that need to change commands/workingDirectory
// must remove and re-add the task (it is, by definition, a different task).
func (tx *Tx) UpdateTask(rec *model.TaskRecord) error {
	existing, err := tx.LookupTask(rec.ID)
	if err != nil {
		return err
	}
	if existing.NaturalKey().String() != rec.NaturalKey().String() {
		return berrors.InvalidEdgef("task %d natural key is immutable", rec.ID)
	}
	return tx.putTask(rec)
}

// RemoveTask deletes the task vertex and cascades: all incident edges (both
// directions) and any pending-set membership are removed too.
func (tx *Tx) RemoveTask(id uint64) error {
	rec, err := tx.LookupTask(id)
	if err != nil {
		return err
	}

	var outgoing []edgeRef // task -> resource (outputs)
	if err := tx.forEachPrefix(edgeForwardPrefix(prefixEdgeTR, id), func(key, _ []byte) error {
		outgoing = append(outgoing, decodeEdgeRefKey(key))
		return nil
	}); err != nil {
		return err
	}
	for _, e := range outgoing {
		if err := tx.delete(edgeForwardKey(prefixEdgeTR, id, e.otherID, e.typ)); err != nil {
			return err
		}
		if err := tx.delete(edgeForwardKey(prefixEdgeTRRev, e.otherID, id, e.typ)); err != nil {
			return err
		}
	}

	var incoming []edgeRef // resource -> task (inputs), reverse table keyed by task id
	if err := tx.forEachPrefix(edgeForwardPrefix(prefixEdgeRTRev, id), func(key, _ []byte) error {
		incoming = append(incoming, decodeEdgeRefKey(key))
		return nil
	}); err != nil {
		return err
	}
	for _, e := range incoming {
		if err := tx.delete(edgeForwardKey(prefixEdgeRTRev, id, e.otherID, e.typ)); err != nil {
			return err
		}
		if err := tx.delete(edgeForwardKey(prefixEdgeRT, e.otherID, id, e.typ)); err != nil {
			return err
		}
	}

	if err := tx.delete(pendingKey(prefixPendingTask, id)); err != nil {
		return err
	}
	if err := tx.delete(taskKeyIndexKey(rec.NaturalKey())); err != nil {
		return err
	}
	return tx.delete(taskRecordKey(id))
}

// EnumerateTasks returns every task vertex in ascending-id (insertion) order.
func (tx *Tx) EnumerateTasks() ([]*model.TaskRecord, error) {
	var out []*model.TaskRecord
	err := tx.forEachPrefix([]byte{prefixTaskRecord}, func(_, val []byte) error {
		rec, err := decodeTask(val)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
