package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/brilliant-build/bbuild/internal/model"
)

// Hash returns the deterministic content identity of g: every vertex path
// or command key, and every edge, length-prefixed into one sha256 sum.
// Generalizes the teacher's computeTaskDefHash/computeGraphHash
// length-prefixing idiom from a single task definition to the whole
// bipartite graph, giving internal/trace a GraphHash to stamp onto an
// ExecutionTrace and internal/runlog a GraphHash to record with each run
// (runs themselves are filed under their run id).
func (g *Graph) Hash() string {
	h := sha256.New()
	writeField := func(data []byte) {
		n := uint64(len(data))
		var lenBytes [8]byte
		for i := 0; i < 8; i++ {
			lenBytes[i] = byte(n >> (56 - 8*i))
		}
		h.Write(lenBytes[:])
		h.Write(data)
	}

	for _, id := range g.resourceIDs {
		writeField([]byte(g.resources[id].Path))
	}
	for _, id := range g.taskIDs {
		writeField([]byte(g.tasks[id].NaturalKey().String()))
	}

	edges := append([]Edge(nil), g.Edges(nil)...)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edgeRefLess(edges[i].From, edges[j].From)
		}
		if edges[i].To != edges[j].To {
			return edgeRefLess(edges[i].To, edges[j].To)
		}
		return edges[i].Type < edges[j].Type
	})
	for _, e := range edges {
		writeField([]byte(e.From.Color.String()))
		writeField(u64Bytes(e.From.ID))
		writeField([]byte(e.To.Color.String()))
		writeField(u64Bytes(e.To.ID))
		writeField([]byte{byte(e.Type)})
	}

	return hex.EncodeToString(h.Sum(nil))
}

func edgeRefLess(a, b model.VertexRef) bool {
	if a.Color != b.Color {
		return a.Color < b.Color
	}
	return a.ID < b.ID
}

func u64Bytes(n uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (56 - 8*i))
	}
	return b[:]
}
