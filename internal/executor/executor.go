// Package executor implements the Executor (spec §4.4): it walks the
// whole graph in parallel via internal/graph's Walk, invokes the
// external command runner for each stale task, reinterprets the runner's
// observed reads/writes as implicit edges using internal/delta, refreshes
// output checksums, and applies every task outcome within one short write
// transaction.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/delta"
	"github.com/brilliant-build/bbuild/internal/graph"
	"github.com/brilliant-build/bbuild/internal/model"
	"github.com/brilliant-build/bbuild/internal/runner"
	"github.com/brilliant-build/bbuild/internal/store"
	bsync "github.com/brilliant-build/bbuild/internal/sync"
	"github.com/brilliant-build/bbuild/internal/trace"
)

// Options configures an Executor. Store and Runner are required; the rest
// default to inert implementations.
type Options struct {
	Store  *store.Store
	Runner runner.Runner
	// Scanner classifies a newly discovered or rewritten resource.
	// Defaults to bsync.FileScanner{}.
	Scanner bsync.Scanner
	// Pool bounds the number of tasks run concurrently. Defaults to 1.
	Pool int
	// Sink receives trace events for this run. Defaults to trace.NopSink{}.
	Sink trace.Sink
	// Tracer, if set, wraps each task invocation in an OTel span.
	Tracer oteltrace.Tracer
	// Metrics, if set, records per-outcome counters/histograms.
	Metrics *Metrics
}

// Executor runs one build over a Graph snapshot.
type Executor struct {
	opts Options
}

// New constructs an Executor, filling in the default collaborators.
func New(opts Options) *Executor {
	if opts.Scanner == nil {
		opts.Scanner = bsync.FileScanner{}
	}
	if opts.Sink == nil {
		opts.Sink = trace.NopSink{}
	}
	if opts.Pool < 1 {
		opts.Pool = 1
	}
	return &Executor{opts: opts}
}

// Failure describes one task's nonzero exit, accumulated across the run
// (§4.4 step 2: "a single build reports all failures accumulated").
type Failure struct {
	TaskID   uint64
	Display  string
	ExitCode int
	Stderr   string
}

// Report summarizes one Run.
type Report struct {
	RunID     string
	GraphHash string
	Executed  []uint64
	Skipped   []uint64
	Failures  []Failure
}

// Run walks g, running every stale task and leaving skipped/clean tasks
// untouched. It returns a non-nil error for a walk-aborting failure (a
// cycle, or a store/runner failure outside the ordinary task-failure
// model) and also when any task failed: accumulated task failures are
// reported via the returned Report and, as the returned error, via a
// joined *berrors.TaskFailure-chain error, matching §7's
// propagation policy ("failures inside a single task ... do not abort the
// whole run").
func (e *Executor) Run(ctx context.Context, g *graph.Graph) (Report, error) {
	runID := uuid.NewString()

	var initialPendingResources, initialPendingTasks []uint64
	err := e.opts.Store.View(func(tx *store.Tx) error {
		var err error
		if initialPendingResources, err = tx.PendingResources(); err != nil {
			return err
		}
		initialPendingTasks, err = tx.PendingTasks()
		return err
	})
	if err != nil {
		return Report{RunID: runID}, err
	}

	rs := newRunState(initialPendingResources)
	pendingTaskSet := make(map[uint64]bool, len(initialPendingTasks))
	for _, id := range initialPendingTasks {
		pendingTaskSet[id] = true
	}

	rep := &report{runID: runID}

	visitResource := func(ctx context.Context, id uint64) (graph.Visit, error) {
		return graph.Visit{Release: true}, nil
	}
	visitTask := func(ctx context.Context, id uint64) (graph.Visit, error) {
		return e.visitTask(ctx, g, id, rs, pendingTaskSet, rep)
	}

	walkErr := g.Walk(ctx, e.opts.Pool, visitResource, visitTask)

	if walkErr == nil {
		walkErr = e.settleResources(g, rs)
	}

	built := rep.finish()
	built.GraphHash = g.Hash()
	if walkErr != nil {
		return built, walkErr
	}
	return built, built.taskFailureErr()
}

// settleResources clears the pending flag of every resource this run
// touched — pending at the start of the run, or newly dirtied by a
// refreshed output (refreshOutput's AddPending) — whose every consuming
// task was actually dispatched by Walk this run. A leaf resource (no
// producer) and an intermediate one (produced by some task) are settled
// the same way: nothing downstream remains that could still react to it.
//
// A resource is left pending when one of its consumers was withheld
// release by an upstream failure elsewhere in the graph (graph.Visit{
// Release: false}) and so was never dispatched (graph.Walk: "a vertex
// whose predecessor withheld release is simply never dispatched") — the
// next run must still propagate to that consumer once it actually runs.
//
// Settling by "were all consumers dispatched", rather than only clearing
// in-degree-0 resources, is what keeps a chain a -> T1 -> b -> T2 -> c
// idempotent: once a no-op run has dispatched T2 and found b unchanged, b's
// pending flag is cleared, so a later no-op build no longer sees b as dirty
// and no longer re-runs T2 forever (spec §8 idempotency).
func (e *Executor) settleResources(g *graph.Graph, rs *runState) error {
	return e.opts.Store.Update(func(tx *store.Tx) error {
		for _, id := range rs.dirtyIDs() {
			ref := model.VertexRef{Color: model.Resource, ID: id}
			settled := true
			for _, edge := range g.Outgoing(ref) {
				if edge.To.Color == model.Task && !rs.wasVisited(edge.To.ID) {
					settled = false
					break
				}
			}
			if !settled {
				continue
			}
			if err := tx.RemovePending(ref); err != nil {
				return err
			}
		}
		return nil
	})
}

// runState tracks, for the duration of one run, which resources are
// currently "dirty" (a reason exists for their consuming tasks to run):
// seeded from the store's pending-resource set at the start of the run,
// and grown as tasks' outputs change during the walk. Reading it from a
// task's visit implements §4.4's "task also becomes pending if any
// predecessor marks it so" without re-querying the store's pending flag
// (which visitResource deliberately never mutates, so dirtiness here is
// the sole live signal within a single run).
type runState struct {
	mu      sync.Mutex
	dirty   map[uint64]bool
	visited map[uint64]bool // task ids Walk actually dispatched this run
}

func newRunState(initialPendingResources []uint64) *runState {
	rs := &runState{
		dirty:   make(map[uint64]bool, len(initialPendingResources)),
		visited: make(map[uint64]bool),
	}
	for _, id := range initialPendingResources {
		rs.dirty[id] = true
	}
	return rs
}

func (rs *runState) isDirty(id uint64) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.dirty[id]
}

func (rs *runState) markDirty(id uint64) {
	rs.mu.Lock()
	rs.dirty[id] = true
	rs.mu.Unlock()
}

// dirtyIDs returns every resource id ever marked dirty this run — seeded
// from the persisted pending set plus anything refreshOutput added —
// sorted for deterministic settling order.
func (rs *runState) dirtyIDs() []uint64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]uint64, 0, len(rs.dirty))
	for id := range rs.dirty {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// markVisited records that Walk actually dispatched task id this run
// (regardless of whether it turned out fresh, executed, or failed).
func (rs *runState) markVisited(id uint64) {
	rs.mu.Lock()
	rs.visited[id] = true
	rs.mu.Unlock()
}

// wasVisited reports whether Walk dispatched task id this run.
func (rs *runState) wasVisited(id uint64) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.visited[id]
}

// report accumulates outcomes from concurrently running task visits.
type report struct {
	mu       sync.Mutex
	runID    string
	executed []uint64
	skipped  []uint64
	failures []Failure
}

func (r *report) addExecuted(id uint64) {
	r.mu.Lock()
	r.executed = append(r.executed, id)
	r.mu.Unlock()
}

func (r *report) addSkipped(id uint64) {
	r.mu.Lock()
	r.skipped = append(r.skipped, id)
	r.mu.Unlock()
}

func (r *report) addFailure(f Failure) {
	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()
}

func (r *report) finish() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Slice(r.failures, func(i, j int) bool { return r.failures[i].TaskID < r.failures[j].TaskID })
	out := Report{RunID: r.runID}
	out.Executed = append(out.Executed, r.executed...)
	out.Skipped = append(out.Skipped, r.skipped...)
	out.Failures = append(out.Failures, r.failures...)
	return out
}

// taskFailureErr joins one *berrors.TaskFailure per accumulated Failure, or
// nil if the run had none.
func (rep Report) taskFailureErr() error {
	if len(rep.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(rep.Failures))
	for i, f := range rep.Failures {
		errs[i] = &berrors.TaskFailure{TaskID: f.Display, ExitCode: f.ExitCode, Stderr: f.Stderr}
	}
	return errors.Join(errs...)
}

func taskLabel(rec *model.TaskRecord, id uint64) string {
	if rec != nil && rec.Display != "" {
		return rec.Display
	}
	return "task#" + strconv.FormatUint(id, 10)
}

// visitTask is the graph.VisitTask callback: decides whether id is stale,
// runs it if so, and applies its outcome.
func (e *Executor) visitTask(ctx context.Context, g *graph.Graph, id uint64, rs *runState, pendingTaskSet map[uint64]bool, rep *report) (graph.Visit, error) {
	rs.markVisited(id)
	rec := g.Task(id)
	taskRef := model.VertexRef{Color: model.Task, ID: id}
	label := taskLabel(rec, id)

	if !e.isStale(g, id, rec, taskRef, pendingTaskSet, rs) {
		trace.SafeRecord(e.opts.Sink, trace.TraceEvent{Kind: trace.EventTaskSkipped, TaskID: label, Reason: "Fresh"})
		rep.addSkipped(id)
		return graph.Visit{Release: true}, nil
	}

	if e.opts.Tracer != nil {
		var span oteltrace.Span
		ctx, span = e.opts.Tracer.Start(ctx, "bbuild.task", oteltrace.WithAttributes(
			attribute.String("bbuild.task_id", label),
		))
		defer span.End()
	}

	start := time.Now()
	result, runErr := e.opts.Runner.Run(ctx, rec.Commands, rec.WorkingDirectory)
	elapsed := time.Since(start).Seconds()
	if runErr != nil {
		e.opts.Metrics.observe("error", elapsed)
		return graph.Visit{}, berrors.WrapIO(runErr, "run task %q", label)
	}

	if result.ExitCode != 0 {
		e.opts.Metrics.observe("failed", elapsed)
		trace.SafeRecord(e.opts.Sink, trace.TraceEvent{Kind: trace.EventTaskFailed, TaskID: label, Reason: fmt.Sprintf("exit %d", result.ExitCode)})
		if err := e.opts.Store.Update(func(tx *store.Tx) error {
			return tx.AddPending(taskRef)
		}); err != nil {
			return graph.Visit{}, err
		}
		rep.addFailure(Failure{TaskID: id, Display: label, ExitCode: result.ExitCode, Stderr: result.Stderr})
		return graph.Visit{Release: false}, nil
	}

	e.opts.Metrics.observe("executed", elapsed)
	if err := e.commitSuccess(g, id, taskRef, rec, result, rs, label); err != nil {
		return graph.Visit{}, err
	}
	trace.SafeRecord(e.opts.Sink, trace.TraceEvent{Kind: trace.EventTaskExecuted, TaskID: label})
	rep.addExecuted(id)
	return graph.Visit{Release: true}, nil
}

// isStale applies the freshness rule of §4.4: a task runs if it was never
// executed (Syncer-created, signalled by a non-positive LastExecuted), or
// it is in the store's persisted pending-task set (new since the last run,
// or left pending by a prior failed run), or any of its input resources is
// currently dirty in this run (pending-propagation from an upstream task's
// changed output, or from Syncer's initial resource pending marks).
func (e *Executor) isStale(g *graph.Graph, id uint64, rec *model.TaskRecord, taskRef model.VertexRef, pendingTaskSet map[uint64]bool, rs *runState) bool {
	if pendingTaskSet[id] {
		return true
	}
	if rec.LastExecuted.IsZero() || rec.LastExecuted.Unix() <= 0 {
		return true
	}
	for _, ed := range g.Incoming(taskRef) {
		if rs.isDirty(ed.From.ID) {
			return true
		}
	}
	return false
}

// commitSuccess computes the implicit-edge delta (§4.4 step 3), refreshes
// output checksums (step 4), and advances the task's lastExecuted/pending
// state (step 5), all within one write transaction.
func (e *Executor) commitSuccess(g *graph.Graph, id uint64, taskRef model.VertexRef, rec *model.TaskRecord, result runner.Result, rs *runState, label string) error {
	readTypes, writeTypes := currentEdgeTypes(g, taskRef)

	readDiff := delta.DiffSlices(implicitKeys(readTypes), sortedUnique(result.Reads), lessString)
	writeDiff := delta.DiffSlices(implicitKeys(writeTypes), sortedUnique(result.Writes), lessString)

	outputs := unionKeys(writeTypes, result.Writes)

	return e.opts.Store.Update(func(tx *store.Tx) error {
		if err := e.reconcileEdges(tx, taskRef, true, readTypes, readDiff, label); err != nil {
			return err
		}
		if err := e.reconcileEdges(tx, taskRef, false, writeTypes, writeDiff, label); err != nil {
			return err
		}
		for _, path := range outputs {
			if err := e.refreshOutput(tx, path, rs, label); err != nil {
				return err
			}
		}
		// rec is a pointer into the Graph's immutable snapshot; copy it
		// before mutating so concurrent readers of g.Task(id) never observe
		// a torn or unexpected write.
		updated := *rec
		updated.LastExecuted = time.Now()
		if err := tx.UpdateTask(&updated); err != nil {
			return err
		}
		return tx.RemovePending(taskRef)
	})
}

// currentEdgeTypes returns the Graph-snapshot edge type for every resource
// currently wired as id's input (readTypes) and output (writeTypes), keyed
// by resource path.
func currentEdgeTypes(g *graph.Graph, taskRef model.VertexRef) (readTypes, writeTypes map[string]model.EdgeType) {
	readTypes = map[string]model.EdgeType{}
	for _, ed := range g.Incoming(taskRef) {
		if res := g.Resource(ed.From.ID); res != nil {
			readTypes[res.Path] = ed.Type
		}
	}
	writeTypes = map[string]model.EdgeType{}
	for _, ed := range g.Outgoing(taskRef) {
		if res := g.Resource(ed.To.ID); res != nil {
			writeTypes[res.Path] = ed.Type
		}
	}
	return readTypes, writeTypes
}

// implicitKeys returns the sorted paths whose recorded type carries an
// implicit origin (Implicit or Both) — the "currently recorded
// implicit/both edges" §4.4 step 3 diffs observation against.
func implicitKeys(types map[string]model.EdgeType) []string {
	var out []string
	for path, t := range types {
		if t == model.Implicit || t == model.Both {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

func sortedUnique(paths []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func unionKeys(types map[string]model.EdgeType, observed []string) []string {
	set := map[string]bool{}
	for path := range types {
		set[path] = true
	}
	for _, path := range observed {
		set[path] = true
	}
	out := make([]string, 0, len(set))
	for path := range set {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func lessString(a, b string) bool { return a < b }

// reconcileEdges applies one direction's (reads or writes) implicit-edge
// diff: an Added path gets a fresh Implicit edge, promoted to Both if an
// Explicit edge already connects the pair; a Removed path's edge is
// demoted via model.Demote, or deleted outright when nothing survives.
func (e *Executor) reconcileEdges(tx *store.Tx, taskRef model.VertexRef, fromResource bool, currentTypes map[string]model.EdgeType, diff []delta.Entry[string], label string) error {
	endpoints := func(resRef model.VertexRef) (from, to model.VertexRef) {
		if fromResource {
			return resRef, taskRef
		}
		return taskRef, resRef
	}

	for _, entry := range diff {
		switch entry.Tag {
		case delta.Added:
			resID, err := e.ensureResource(tx, entry.Value)
			if err != nil {
				return err
			}
			from, to := endpoints(model.VertexRef{Color: model.Resource, ID: resID})
			explicitKey := model.EdgeKey{From: from, To: to, Type: model.Explicit}
			hasExplicit, err := tx.EdgeExists(explicitKey)
			if err != nil {
				return err
			}
			if hasExplicit {
				if err := tx.RemoveEdge(explicitKey); err != nil {
					return err
				}
				if err := tx.PutEdge(model.EdgeKey{From: from, To: to, Type: model.Promote(model.Explicit, model.Implicit)}); err != nil {
					return err
				}
				trace.SafeRecord(e.opts.Sink, trace.TraceEvent{Kind: trace.EventEdgePromoted, TaskID: label, Reason: entry.Value})
				continue
			}
			if err := tx.PutEdge(model.EdgeKey{From: from, To: to, Type: model.Implicit}); err != nil {
				return err
			}
		case delta.Removed:
			resID, err := tx.FindResourceByPath(entry.Value)
			if err != nil {
				return err
			}
			from, to := endpoints(model.VertexRef{Color: model.Resource, ID: resID})
			current := currentTypes[entry.Value]
			if err := tx.RemoveEdge(model.EdgeKey{From: from, To: to, Type: current}); err != nil {
				return err
			}
			if remaining, ok := model.Demote(current, model.Implicit); ok {
				if err := tx.PutEdge(model.EdgeKey{From: from, To: to, Type: remaining}); err != nil {
					return err
				}
			}
			trace.SafeRecord(e.opts.Sink, trace.TraceEvent{Kind: trace.EventEdgeDemoted, TaskID: label, Reason: entry.Value})
		}
	}
	return nil
}

// ensureResource returns path's resource id, creating the vertex (scanned
// via Options.Scanner) if the runner observed an access to a path no rule
// ever declared (§8 scenario 4, implicit discovery).
func (e *Executor) ensureResource(tx *store.Tx, path string) (uint64, error) {
	id, err := tx.FindResourceByPath(path)
	if err == nil {
		return id, nil
	}
	if err != store.ErrNotFound {
		return 0, err
	}
	status, checksum, scanErr := e.opts.Scanner.Scan(path)
	if scanErr != nil {
		return 0, berrors.WrapIO(scanErr, "scan newly observed resource %q", path)
	}
	return tx.AddResource(path, status, checksum)
}

// refreshOutput re-scans path (an output of the task just run), updating
// its stored checksum and pending flag: dirty (pending, and marked dirty
// for this run's propagation) on change, clean otherwise.
func (e *Executor) refreshOutput(tx *store.Tx, path string, rs *runState, label string) error {
	id, err := tx.FindResourceByPath(path)
	if err != nil {
		return err
	}
	rec, err := tx.LookupResource(id)
	if err != nil {
		return err
	}
	status, checksum, err := e.opts.Scanner.Scan(path)
	if err != nil {
		return berrors.WrapIO(err, "scan output %q", path)
	}
	ref := model.VertexRef{Color: model.Resource, ID: id}
	if status == rec.Status && bytesEqual(checksum, rec.Checksum) {
		return tx.RemovePending(ref)
	}
	rec.Status = status
	rec.Checksum = checksum
	if err := tx.UpdateResource(rec); err != nil {
		return err
	}
	if err := tx.AddPending(ref); err != nil {
		return err
	}
	rs.markDirty(id)
	trace.SafeRecord(e.opts.Sink, trace.TraceEvent{Kind: trace.EventResourcePending, TaskID: label, Reason: path})
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
