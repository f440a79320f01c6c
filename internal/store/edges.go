package store

import (
	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/model"
)

// edgeRef is one decoded neighbor entry from an edge table: the id on the
// other end and the edge's type.
type edgeRef struct {
	otherID uint64
	typ     model.EdgeType
}

// decodeEdgeRefKey extracts (otherID, type) from a forward edge key of the
// form prefix(1) + fromID(8) + otherID(8) + type(1).
func decodeEdgeRefKey(key []byte) edgeRef {
	otherID := parseU64be(key[9:17])
	return edgeRef{otherID: otherID, typ: model.EdgeType(key[17])}
}

func (tx *Tx) edgesByPrefix(prefix byte, id uint64) ([]edgeRef, error) {
	var out []edgeRef
	err := tx.forEachPrefix(edgeForwardPrefix(prefix, id), func(key, _ []byte) error {
		out = append(out, decodeEdgeRefKey(key))
		return nil
	})
	return out, err
}

// Neighbor is one edge endpoint paired with the edge's type, as returned by
// Outgoing/Incoming.
type Neighbor struct {
	Ref  model.VertexRef
	Type model.EdgeType
}

func requireBipartite(from, to model.VertexRef) error {
	if from.Color == to.Color {
		return berrors.InvalidEdgef("edge endpoints must be opposite colors, got %s -> %s", from.Color, to.Color)
	}
	return nil
}

// PutEdge inserts or overwrites the edge (from -> to, type); V3 allows at
// most one edge per (from, to, type) triple, so a repeat PutEdge is a no-op
// overwrite rather than a duplicate.
func (tx *Tx) PutEdge(key model.EdgeKey) error {
	if err := requireBipartite(key.From, key.To); err != nil {
		return err
	}
	if key.From.Color == model.Resource {
		if err := tx.set(edgeForwardKey(prefixEdgeRT, key.From.ID, key.To.ID, key.Type), nil); err != nil {
			return err
		}
		return tx.set(edgeForwardKey(prefixEdgeRTRev, key.To.ID, key.From.ID, key.Type), nil)
	}
	if err := tx.set(edgeForwardKey(prefixEdgeTR, key.From.ID, key.To.ID, key.Type), nil); err != nil {
		return err
	}
	return tx.set(edgeForwardKey(prefixEdgeTRRev, key.To.ID, key.From.ID, key.Type), nil)
}

// RemoveEdge deletes the edge (from -> to, type) if present; removing a
// missing edge is not an error.
func (tx *Tx) RemoveEdge(key model.EdgeKey) error {
	if err := requireBipartite(key.From, key.To); err != nil {
		return err
	}
	if key.From.Color == model.Resource {
		if err := tx.delete(edgeForwardKey(prefixEdgeRT, key.From.ID, key.To.ID, key.Type)); err != nil {
			return err
		}
		return tx.delete(edgeForwardKey(prefixEdgeRTRev, key.To.ID, key.From.ID, key.Type))
	}
	if err := tx.delete(edgeForwardKey(prefixEdgeTR, key.From.ID, key.To.ID, key.Type)); err != nil {
		return err
	}
	return tx.delete(edgeForwardKey(prefixEdgeTRRev, key.To.ID, key.From.ID, key.Type))
}

// EdgeExists reports whether the exact (from, to, type) triple is present.
func (tx *Tx) EdgeExists(key model.EdgeKey) (bool, error) {
	if err := requireBipartite(key.From, key.To); err != nil {
		return false, err
	}
	prefix := prefixEdgeTR
	if key.From.Color == model.Resource {
		prefix = prefixEdgeRT
	}
	return tx.exists(edgeForwardKey(prefix, key.From.ID, key.To.ID, key.Type))
}

// Outgoing returns every edge leading out of ref, in (otherID, type)
// ascending order: for a Resource, the Tasks that declare it as an input;
// for a Task, the Resources it writes as output.
func (tx *Tx) Outgoing(ref model.VertexRef) ([]Neighbor, error) {
	prefix := prefixEdgeTR
	otherColor := model.Resource
	if ref.Color == model.Resource {
		prefix = prefixEdgeRT
		otherColor = model.Task
	}
	refs, err := tx.edgesByPrefix(prefix, ref.ID)
	if err != nil {
		return nil, err
	}
	return toNeighbors(refs, otherColor), nil
}

// Incoming returns every edge leading into ref: for a Task, the Resources
// declared as its inputs; for a Resource, the Tasks that write it as output.
func (tx *Tx) Incoming(ref model.VertexRef) ([]Neighbor, error) {
	prefix := prefixEdgeTRRev
	otherColor := model.Task
	if ref.Color == model.Task {
		prefix = prefixEdgeRTRev
		otherColor = model.Resource
	}
	refs, err := tx.edgesByPrefix(prefix, ref.ID)
	if err != nil {
		return nil, err
	}
	return toNeighbors(refs, otherColor), nil
}

func toNeighbors(refs []edgeRef, otherColor model.Color) []Neighbor {
	out := make([]Neighbor, len(refs))
	for i, r := range refs {
		out[i] = Neighbor{Ref: model.VertexRef{Color: otherColor, ID: r.otherID}, Type: r.typ}
	}
	return out
}

// DegreeOut returns the number of edges leading out of ref.
func (tx *Tx) DegreeOut(ref model.VertexRef) (int, error) {
	n, err := tx.Outgoing(ref)
	return len(n), err
}

// DegreeIn returns the number of edges leading into ref.
func (tx *Tx) DegreeIn(ref model.VertexRef) (int, error) {
	n, err := tx.Incoming(ref)
	return len(n), err
}
