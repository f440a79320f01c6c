// Package graph implements the in-memory bipartite dependency graph: a
// consistent snapshot pulled from the store in one read transaction,
// supporting typed traversal, Tarjan cycle detection, subgraph extraction
// and parallel topological walk (spec §4.2).
package graph

import (
	"fmt"

	"github.com/brilliant-build/bbuild/internal/model"
	"github.com/brilliant-build/bbuild/internal/store"
)

// Edge is one directed, typed dependency edge between vertices of opposite
// color.
type Edge struct {
	From model.VertexRef
	To   model.VertexRef
	Type model.EdgeType
}

// Graph is an immutable snapshot of the bipartite dependency graph. Safe for
// concurrent read access by any number of goroutines once built.
type Graph struct {
	resourceIDs []uint64 // insertion order, id=1 (description) included
	taskIDs     []uint64 // insertion order

	resources map[uint64]*model.ResourceRecord
	tasks     map[uint64]*model.TaskRecord

	out map[model.VertexRef][]Edge
	in  map[model.VertexRef][]Edge
}

// Build streams every vertex and edge out of s within one read transaction,
// producing a consistent immutable snapshot.
func Build(s *store.Store) (*Graph, error) {
	g := &Graph{
		resources: map[uint64]*model.ResourceRecord{},
		tasks:     map[uint64]*model.TaskRecord{},
		out:       map[model.VertexRef][]Edge{},
		in:        map[model.VertexRef][]Edge{},
	}

	err := s.View(func(tx *store.Tx) error {
		resources, err := tx.EnumerateResources(true)
		if err != nil {
			return err
		}
		for _, r := range resources {
			g.resourceIDs = append(g.resourceIDs, r.ID)
			g.resources[r.ID] = r
		}

		tasks, err := tx.EnumerateTasks()
		if err != nil {
			return err
		}
		for _, t := range tasks {
			g.taskIDs = append(g.taskIDs, t.ID)
			g.tasks[t.ID] = t
		}

		// Every edge has exactly one of its two endpoints colored Resource;
		// streaming Outgoing for every resource and every task together
		// visits each edge exactly once.
		for _, id := range g.resourceIDs {
			ref := model.VertexRef{Color: model.Resource, ID: id}
			neighbors, err := tx.Outgoing(ref)
			if err != nil {
				return err
			}
			for _, n := range neighbors {
				g.addEdge(Edge{From: ref, To: n.Ref, Type: n.Type})
			}
		}
		for _, id := range g.taskIDs {
			ref := model.VertexRef{Color: model.Task, ID: id}
			neighbors, err := tx.Outgoing(ref)
			if err != nil {
				return err
			}
			for _, n := range neighbors {
				g.addEdge(Edge{From: ref, To: n.Ref, Type: n.Type})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) addEdge(e Edge) {
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
}

// Vertices returns every vertex id of the given color, in insertion order.
// Resources include id=1 (the description resource).
func (g *Graph) Vertices(color model.Color) []uint64 {
	if color == model.Resource {
		return append([]uint64(nil), g.resourceIDs...)
	}
	return append([]uint64(nil), g.taskIDs...)
}

// Resource returns the resource record for id, or nil if absent.
func (g *Graph) Resource(id uint64) *model.ResourceRecord { return g.resources[id] }

// Task returns the task record for id, or nil if absent.
func (g *Graph) Task(id uint64) *model.TaskRecord { return g.tasks[id] }

// Edges returns every edge in the graph, optionally filtered to a single
// type. Pass nil for all types.
func (g *Graph) Edges(filter *model.EdgeType) []Edge {
	var out []Edge
	for _, id := range g.resourceIDs {
		for _, e := range g.out[model.VertexRef{Color: model.Resource, ID: id}] {
			if filter == nil || e.Type == *filter {
				out = append(out, e)
			}
		}
	}
	for _, id := range g.taskIDs {
		for _, e := range g.out[model.VertexRef{Color: model.Task, ID: id}] {
			if filter == nil || e.Type == *filter {
				out = append(out, e)
			}
		}
	}
	return out
}

// Outgoing returns ref's out-edges, in the order they were streamed from
// the store.
func (g *Graph) Outgoing(ref model.VertexRef) []Edge { return g.out[ref] }

// Incoming returns ref's in-edges.
func (g *Graph) Incoming(ref model.VertexRef) []Edge { return g.in[ref] }

// DegreeOut returns len(Outgoing(ref)).
func (g *Graph) DegreeOut(ref model.VertexRef) int { return len(g.out[ref]) }

// DegreeIn returns len(Incoming(ref)).
func (g *Graph) DegreeIn(ref model.VertexRef) int { return len(g.in[ref]) }

// orderedVertices returns every vertex in the graph, resources then tasks,
// each in ascending insertion order — the graph's one fixed iteration order.
func (g *Graph) orderedVertices() []model.VertexRef {
	out := make([]model.VertexRef, 0, len(g.resourceIDs)+len(g.taskIDs))
	for _, id := range g.resourceIDs {
		out = append(out, model.VertexRef{Color: model.Resource, ID: id})
	}
	for _, id := range g.taskIDs {
		out = append(out, model.VertexRef{Color: model.Task, ID: id})
	}
	return out
}

// vertexLabel renders a human-readable name for diagnostics: a resource's
// path, or a task's display label (falling back to "task#id").
func (g *Graph) vertexLabel(ref model.VertexRef) string {
	if ref.Color == model.Resource {
		if r := g.resources[ref.ID]; r != nil {
			return r.Path
		}
		return fmt.Sprintf("resource#%d", ref.ID)
	}
	if t := g.tasks[ref.ID]; t != nil && t.Display != "" {
		return t.Display
	}
	return fmt.Sprintf("task#%d", ref.ID)
}

// Exclude returns the induced subgraph over every vertex NOT named by
// excludeR/excludeT, used to build the "cached only" view (`graph
// --cached`): the complement of the currently-pending vertex set.
func (g *Graph) Exclude(excludeR, excludeT []uint64) *Graph {
	excluded := map[model.VertexRef]bool{}
	for _, id := range excludeR {
		excluded[model.VertexRef{Color: model.Resource, ID: id}] = true
	}
	for _, id := range excludeT {
		excluded[model.VertexRef{Color: model.Task, ID: id}] = true
	}

	sub := &Graph{
		resources: map[uint64]*model.ResourceRecord{},
		tasks:     map[uint64]*model.TaskRecord{},
		out:       map[model.VertexRef][]Edge{},
		in:        map[model.VertexRef][]Edge{},
	}
	for _, ref := range g.orderedVertices() {
		if excluded[ref] {
			continue
		}
		if ref.Color == model.Resource {
			sub.resourceIDs = append(sub.resourceIDs, ref.ID)
			sub.resources[ref.ID] = g.resources[ref.ID]
		} else {
			sub.taskIDs = append(sub.taskIDs, ref.ID)
			sub.tasks[ref.ID] = g.tasks[ref.ID]
		}
		for _, e := range g.out[ref] {
			if !excluded[e.To] {
				sub.addEdge(e)
			}
		}
	}
	return sub
}

// Subgraph returns the induced subgraph reachable from the given resource
// and task roots following forward (out) edges, used to build the
// "changes only" view (`graph --changes`).
func (g *Graph) Subgraph(rootsR, rootsT []uint64) *Graph {
	visited := map[model.VertexRef]bool{}
	var frontier []model.VertexRef
	for _, id := range rootsR {
		frontier = append(frontier, model.VertexRef{Color: model.Resource, ID: id})
	}
	for _, id := range rootsT {
		frontier = append(frontier, model.VertexRef{Color: model.Task, ID: id})
	}

	for len(frontier) > 0 {
		ref := frontier[0]
		frontier = frontier[1:]
		if visited[ref] {
			continue
		}
		visited[ref] = true
		for _, e := range g.out[ref] {
			if !visited[e.To] {
				frontier = append(frontier, e.To)
			}
		}
	}

	sub := &Graph{
		resources: map[uint64]*model.ResourceRecord{},
		tasks:     map[uint64]*model.TaskRecord{},
		out:       map[model.VertexRef][]Edge{},
		in:        map[model.VertexRef][]Edge{},
	}
	for _, ref := range g.orderedVertices() {
		if !visited[ref] {
			continue
		}
		if ref.Color == model.Resource {
			sub.resourceIDs = append(sub.resourceIDs, ref.ID)
			sub.resources[ref.ID] = g.resources[ref.ID]
		} else {
			sub.taskIDs = append(sub.taskIDs, ref.ID)
			sub.tasks[ref.ID] = g.tasks[ref.ID]
		}
		for _, e := range g.out[ref] {
			if visited[e.To] {
				sub.addEdge(e)
			}
		}
	}
	return sub
}
