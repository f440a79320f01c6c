package graph

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/model"
)

// Visit is the outcome of visiting one vertex. Release tells Walk whether
// to decrement its successors' in-edge counters: true for every resource
// visit and every successful-or-skipped task, false for a failed task,
// whose transitive successors must not be released (§4.4 step 2) while
// unaffected branches continue.
type Visit struct {
	Release bool
}

// VisitResource is called for each resource popped from the ready frontier.
// Resources are passive (§4.4): they always release their successors; the
// error return is reserved for unexpected, walk-aborting failures (e.g. a
// store I/O error), never for an ordinary task failure.
type VisitResource func(ctx context.Context, id uint64) (Visit, error)

// VisitTask is called for each task popped from the ready frontier. A
// command failure is reported via Visit{Release: false} and a nil error —
// it blocks only that task's downstream, it does not abort the walk. A
// non-nil error aborts the whole walk, for unexpected failures outside the
// task-failure model (e.g. a store I/O error mid-commit).
type VisitTask func(ctx context.Context, id uint64) (Visit, error)

// Walk performs the parallel topological traversal of §4.2/§4.4: a vertex
// is ready once every in-edge has been processed; the walk starts at
// in-degree-0 vertices and releases successors as their in-edge counters
// reach zero, bounded by a worker pool of size pool. If the graph contains
// any cycle, Walk returns a berrors
// CycleError without invoking any visitor. A vertex whose predecessor
// withheld release is simply never dispatched; Walk terminates once no
// vertex is in flight or queued, not once every vertex has run.
func (g *Graph) Walk(ctx context.Context, pool int, visitResource VisitResource, visitTask VisitTask) error {
	if pool < 1 {
		pool = 1
	}
	if cycles := g.Cycles(); len(cycles) > 0 {
		return &berrors.CycleError{Cycles: g.renderCycles(cycles)}
	}

	remaining := map[model.VertexRef]int{}
	var ready []model.VertexRef
	for _, ref := range g.orderedVertices() {
		remaining[ref] = len(g.in[ref])
		if remaining[ref] == 0 {
			ready = append(ready, ref)
		}
	}
	sortRefs(ready)

	eg, egctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, pool)

	type outcome struct {
		ref     model.VertexRef
		release bool
	}
	done := make(chan outcome, 4096)

	// dispatch and the done-channel consumer below are the only touchers of
	// remaining/sem, and dispatch only ever runs from that single consumer
	// (plus the initial frontier before the loop starts), so no additional
	// locking is needed around either.
	dispatch := func(ref model.VertexRef) {
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()
			var v Visit
			var err error
			if ref.Color == model.Resource {
				v, err = visitResource(egctx, ref.ID)
			} else {
				v, err = visitTask(egctx, ref.ID)
			}
			if err != nil {
				return err
			}
			done <- outcome{ref: ref, release: v.Release}
			return nil
		})
	}

	outstanding := len(ready)
	for _, ref := range ready {
		dispatch(ref)
	}

consume:
	for outstanding > 0 {
		select {
		case o := <-done:
			outstanding--
			if !o.release {
				continue
			}
			var next []model.VertexRef
			for _, e := range g.out[o.ref] {
				remaining[e.To]--
				if remaining[e.To] == 0 {
					next = append(next, e.To)
				}
			}
			sortRefs(next)
			outstanding += len(next)
			for _, n := range next {
				dispatch(n)
			}
		case <-egctx.Done():
			break consume
		}
	}

	return eg.Wait()
}

// sortRefs orders vertices resources-before-tasks, then ascending id, so
// concurrent dispatch of a newly-ready batch is still deterministic.
func sortRefs(refs []model.VertexRef) {
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && refLess(refs[j], refs[j-1]); j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
}

func refLess(a, b model.VertexRef) bool {
	if a.Color != b.Color {
		return a.Color < b.Color
	}
	return a.ID < b.ID
}

func (g *Graph) renderCycles(sccs [][]model.VertexRef) [][]string {
	out := make([][]string, len(sccs))
	for i, scc := range sccs {
		names := make([]string, len(scc))
		for j, ref := range scc {
			names[j] = g.vertexLabel(ref)
		}
		out[i] = names
	}
	return out
}
