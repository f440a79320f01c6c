package store

import (
	"encoding/json"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/model"
)

// resourceDoc is the on-disk encoding of a ResourceRecord. Kept distinct
// from model.ResourceRecord so the wire format can evolve independently of
// the in-memory type.
type resourceDoc struct {
	ID       uint64              `json:"id"`
	Path     string              `json:"path"`
	Status   model.ResourceStatus `json:"status"`
	Checksum []byte              `json:"checksum,omitempty"`
}

func encodeResource(r *model.ResourceRecord) ([]byte, error) {
	b, err := json.Marshal(resourceDoc{ID: r.ID, Path: r.Path, Status: r.Status, Checksum: r.Checksum})
	if err != nil {
		return nil, berrors.WrapIO(err, "encode resource %d", r.ID)
	}
	return b, nil
}

func decodeResource(b []byte) (*model.ResourceRecord, error) {
	var doc resourceDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, berrors.WrapIO(err, "decode resource")
	}
	return &model.ResourceRecord{ID: doc.ID, Path: doc.Path, Status: doc.Status, Checksum: doc.Checksum}, nil
}

// LookupResource returns the resource with the given id, or ErrNotFound.
func (tx *Tx) LookupResource(id uint64) (*model.ResourceRecord, error) {
	raw, err := tx.get(resourceRecordKey(id))
	if err != nil {
		return nil, err
	}
	return decodeResource(raw)
}

// FindResourceByPath returns the id of the resource at path, or ErrNotFound.
func (tx *Tx) FindResourceByPath(path string) (uint64, error) {
	raw, err := tx.get(resourcePathKey(path))
	if err != nil {
		return 0, err
	}
	return parseU64be(raw), nil
}

// AddResource inserts a new resource vertex and returns its assigned id.
// The natural key (path) must not already exist.
func (tx *Tx) AddResource(path string, status model.ResourceStatus, checksum []byte) (uint64, error) {
	if _, err := tx.FindResourceByPath(path); err == nil {
		return 0, berrors.InvalidEdgef("resource already exists at path %q", path)
	} else if err != ErrNotFound {
		return 0, err
	}
	id, err := tx.nextID(counterResourceKey)
	if err != nil {
		return 0, err
	}
	rec := &model.ResourceRecord{ID: id, Path: path, Status: status, Checksum: checksum}
	return id, tx.putResource(rec)
}

func (tx *Tx) putResource(rec *model.ResourceRecord) error {
	enc, err := encodeResource(rec)
	if err != nil {
		return err
	}
	if err := tx.set(resourceRecordKey(rec.ID), enc); err != nil {
		return err
	}
	return tx.set(resourcePathKey(rec.Path), u64be(rec.ID))
}

// UpdateResource overwrites the stored record for an existing resource.
func (tx *Tx) UpdateResource(rec *model.ResourceRecord) error {
	if _, err := tx.LookupResource(rec.ID); err != nil {
		return err
	}
	return tx.putResource(rec)
}

// RemoveResource deletes the resource vertex and cascades: all incident
// edges (both directions) and any pending-set membership are removed too,
// per V6 (the store never persists a dangling edge endpoint).
func (tx *Tx) RemoveResource(id uint64) error {
	rec, err := tx.LookupResource(id)
	if err != nil {
		return err
	}

	// Outgoing: resource -> task (this resource as an input).
	var outgoing []edgeRef
	if err := tx.forEachPrefix(edgeForwardPrefix(prefixEdgeRT, id), func(key, _ []byte) error {
		outgoing = append(outgoing, decodeEdgeRefKey(key))
		return nil
	}); err != nil {
		return err
	}
	for _, e := range outgoing {
		if err := tx.delete(edgeForwardKey(prefixEdgeRT, id, e.otherID, e.typ)); err != nil {
			return err
		}
		if err := tx.delete(edgeForwardKey(prefixEdgeRTRev, e.otherID, id, e.typ)); err != nil {
			return err
		}
	}

	// Incoming: task -> resource (this resource as an output).
	var incoming []edgeRef
	if err := tx.forEachPrefix(edgeForwardPrefix(prefixEdgeTRRev, id), func(key, _ []byte) error {
		incoming = append(incoming, decodeEdgeRefKey(key))
		return nil
	}); err != nil {
		return err
	}
	for _, e := range incoming {
		if err := tx.delete(edgeForwardKey(prefixEdgeTRRev, id, e.otherID, e.typ)); err != nil {
			return err
		}
		if err := tx.delete(edgeForwardKey(prefixEdgeTR, e.otherID, id, e.typ)); err != nil {
			return err
		}
	}

	if err := tx.delete(pendingKey(prefixPendingResource, id)); err != nil {
		return err
	}
	if err := tx.delete(resourcePathKey(rec.Path)); err != nil {
		return err
	}
	return tx.delete(resourceRecordKey(id))
}

// EnumerateResources returns every resource vertex in ascending-id
// (insertion) order, skipping the reserved description resource (id=1)
// unless includeDescription is set.
func (tx *Tx) EnumerateResources(includeDescription bool) ([]*model.ResourceRecord, error) {
	var out []*model.ResourceRecord
	err := tx.forEachPrefix([]byte{prefixResourceRecord}, func(_, val []byte) error {
		rec, err := decodeResource(val)
		if err != nil {
			return err
		}
		if !includeDescription && model.IsDescription(rec.ID) {
			return nil
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// seedDescription creates the reserved id=1 resource, bypassing the normal
// AddResource counter (the description always occupies id 1) and seeding
// the resource id counter so the next AddResource call starts at 2.
func (tx *Tx) seedDescription() error {
	rec := &model.ResourceRecord{ID: model.DescriptionResourceID, Path: "", Status: model.StatusUnknown}
	if err := tx.putResource(rec); err != nil {
		return err
	}
	return tx.set(counterResourceKey, u64be(model.DescriptionResourceID))
}
