package graph

import "github.com/brilliant-build/bbuild/internal/model"

// tarjan is one run of Tarjan's strongly-connected-components algorithm,
// iterative to avoid recursion depth limits on large graphs.
type tarjan struct {
	g        *Graph
	index    map[model.VertexRef]int
	lowlink  map[model.VertexRef]int
	onStack  map[model.VertexRef]bool
	stack    []model.VertexRef
	next     int
	sccs     [][]model.VertexRef
}

type frame struct {
	ref      model.VertexRef
	edgeIdx  int
}

// Cycles returns every non-trivial strongly-connected component (size >= 2;
// a bipartite graph can never hold a size-1 self-loop) via Tarjan's
// algorithm, in deterministic order: a component is emitted when the
// depth-first search finishes its root vertex, and the search follows the
// graph's fixed resources-then-tasks, ascending-id order.
func (g *Graph) Cycles() [][]model.VertexRef {
	t := &tarjan{
		g:       g,
		index:   map[model.VertexRef]int{},
		lowlink: map[model.VertexRef]int{},
		onStack: map[model.VertexRef]bool{},
	}
	for _, ref := range g.orderedVertices() {
		if _, seen := t.index[ref]; !seen {
			t.strongConnect(ref)
		}
	}

	var nonTrivial [][]model.VertexRef
	for _, scc := range t.sccs {
		if len(scc) >= 2 {
			nonTrivial = append(nonTrivial, scc)
		}
	}
	return nonTrivial
}

func (t *tarjan) strongConnect(start model.VertexRef) {
	var work []*frame
	work = append(work, &frame{ref: start})
	t.visit(start)

	for len(work) > 0 {
		top := work[len(work)-1]
		edges := t.g.out[top.ref]

		if top.edgeIdx < len(edges) {
			e := edges[top.edgeIdx]
			top.edgeIdx++
			w := e.To
			if _, seen := t.index[w]; !seen {
				t.visit(w)
				work = append(work, &frame{ref: w})
				continue
			}
			if t.onStack[w] {
				if t.index[w] < t.lowlink[top.ref] {
					t.lowlink[top.ref] = t.index[w]
				}
			}
			continue
		}

		// Done with top: pop and propagate lowlink to parent.
		work = work[:len(work)-1]
		if len(work) > 0 {
			parent := work[len(work)-1]
			if t.lowlink[top.ref] < t.lowlink[parent.ref] {
				t.lowlink[parent.ref] = t.lowlink[top.ref]
			}
		}

		if t.lowlink[top.ref] == t.index[top.ref] {
			var scc []model.VertexRef
			for {
				n := len(t.stack) - 1
				w := t.stack[n]
				t.stack = t.stack[:n]
				t.onStack[w] = false
				scc = append(scc, w)
				if w == top.ref {
					break
				}
			}
			t.sccs = append(t.sccs, scc)
		}
	}
}

func (t *tarjan) visit(ref model.VertexRef) {
	t.index[ref] = t.next
	t.lowlink[ref] = t.next
	t.next++
	t.stack = append(t.stack, ref)
	t.onStack[ref] = true
}
