// Package sync implements the Syncer: reconciling a freshly parsed rule set
// against the StateStore using the change detector, fingerprinting the
// description itself, and seeding the initial pending set (spec §4.3).
package sync

import (
	"sort"
	"time"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/delta"
	"github.com/brilliant-build/bbuild/internal/model"
	"github.com/brilliant-build/bbuild/internal/store"
)

// Rule is one parsed {task, inputs, outputs} triple, the unit the external
// build-description parser produces (spec §1 Non-goals: parsing itself is
// out of core scope).
type Rule struct {
	Task    model.TaskKey
	Display string
	Inputs  []string
	Outputs []string
}

// Scanner obtains the externally observed (status, checksum) of a resource
// path, letting callers substitute a fake for tests instead of touching a
// real filesystem.
type Scanner interface {
	Scan(path string) (model.ResourceStatus, []byte, error)
}

// Sync brings s into agreement with rules, derived from descriptionBytes,
// within a single write transaction. scanner re-examines surviving
// resources for drift since the last run.
func Sync(s *store.Store, descriptionBytes []byte, rules []Rule, scanner Scanner) error {
	return s.Update(func(tx *store.Tx) error {
		if err := syncDescription(tx, descriptionBytes); err != nil {
			return err
		}

		declaredResources, declaredTasks := declaredVertices(rules)

		if err := syncResourceVertices(tx, declaredResources); err != nil {
			return err
		}
		if err := syncTaskVertices(tx, declaredTasks); err != nil {
			return err
		}
		if err := syncExplicitEdges(tx, rules); err != nil {
			return err
		}
		return rescanSurvivingResources(tx, declaredResources, scanner)
	})
}

// syncDescription fingerprints descriptionBytes into the reserved id=1
// resource's checksum, marking it pending iff the fingerprint changed.
func syncDescription(tx *store.Tx, descriptionBytes []byte) error {
	rec, err := tx.LookupResource(model.DescriptionResourceID)
	if err != nil {
		return berrors.WrapIO(err, "lookup description resource")
	}
	sum := store.Fingerprint(descriptionBytes)
	if bytesEqual(rec.Checksum, sum) {
		return nil
	}
	rec.Checksum = sum
	rec.Status = model.StatusFile
	if err := tx.UpdateResource(rec); err != nil {
		return err
	}
	return tx.AddPending(model.VertexRef{Color: model.Resource, ID: model.DescriptionResourceID})
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

// declaredVertices collects the unique set of resource paths and task keys
// referenced by rules, each sorted under its natural order.
func declaredVertices(rules []Rule) (resources []string, tasks []model.TaskKey) {
	resourceSet := map[string]struct{}{}
	taskSet := map[string]model.TaskKey{}
	for _, r := range rules {
		taskSet[r.Task.String()] = r.Task
		for _, p := range r.Inputs {
			resourceSet[p] = struct{}{}
		}
		for _, p := range r.Outputs {
			resourceSet[p] = struct{}{}
		}
	}
	for p := range resourceSet {
		resources = append(resources, p)
	}
	sort.Strings(resources)
	for _, k := range taskSet {
		tasks = append(tasks, k)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].String() < tasks[j].String() })
	return resources, tasks
}

func syncResourceVertices(tx *store.Tx, declared []string) error {
	var current []string
	resources, err := tx.EnumerateResources(false)
	if err != nil {
		return err
	}
	currentIDs := map[string]uint64{}
	for _, r := range resources {
		hasExplicit, err := vertexHasExplicitEdge(tx, model.VertexRef{Color: model.Resource, ID: r.ID})
		if err != nil {
			return err
		}
		if hasExplicit {
			current = append(current, r.Path)
			currentIDs[r.Path] = r.ID
		}
	}
	sort.Strings(current)

	entries := delta.DiffSlices(current, declared, func(a, b string) bool { return a < b })
	for _, e := range entries {
		switch e.Tag {
		case delta.Added:
			id, err := tx.AddResource(e.Value, model.StatusUnknown, nil)
			if err != nil {
				return err
			}
			if err := tx.AddPending(model.VertexRef{Color: model.Resource, ID: id}); err != nil {
				return err
			}
		case delta.Removed:
			id := currentIDs[e.Value]
			if err := dropExplicitEdges(tx, model.VertexRef{Color: model.Resource, ID: id}); err != nil {
				return err
			}
			if err := removeIfIsolated(tx, model.VertexRef{Color: model.Resource, ID: id}); err != nil {
				return err
			}
		}
	}
	return nil
}

func syncTaskVertices(tx *store.Tx, declared []model.TaskKey) error {
	var current []model.TaskKey
	tasks, err := tx.EnumerateTasks()
	if err != nil {
		return err
	}
	currentIDs := map[string]uint64{}
	for _, t := range tasks {
		key := t.NaturalKey()
		ref := model.VertexRef{Color: model.Task, ID: t.ID}
		hasExplicit, err := vertexHasExplicitEdge(tx, ref)
		if err != nil {
			return err
		}
		if !hasExplicit {
			// A task with no edges at all (its rule declares no paths, or the
			// resource pass above dropped them) also counts as current, so it
			// is matched against the description or removed.
			out, err := tx.DegreeOut(ref)
			if err != nil {
				return err
			}
			in, err := tx.DegreeIn(ref)
			if err != nil {
				return err
			}
			hasExplicit = out == 0 && in == 0
		}
		if hasExplicit {
			current = append(current, key)
			currentIDs[key.String()] = t.ID
		}
	}
	less := func(a, b model.TaskKey) bool { return a.String() < b.String() }
	sort.Slice(current, func(i, j int) bool { return less(current[i], current[j]) })

	entries := delta.DiffSlices(current, declared, less)
	for _, e := range entries {
		switch e.Tag {
		case delta.Added:
			id, err := tx.AddTask(&model.TaskRecord{
				Commands:         e.Value.Commands,
				WorkingDirectory: e.Value.WorkingDirectory,
				LastExecuted:     time.Unix(0, 0).UTC(),
			})
			if err != nil {
				return err
			}
			if err := tx.AddPending(model.VertexRef{Color: model.Task, ID: id}); err != nil {
				return err
			}
		case delta.Removed:
			id := currentIDs[e.Value.String()]
			if err := dropExplicitEdges(tx, model.VertexRef{Color: model.Task, ID: id}); err != nil {
				return err
			}
			if err := removeIfIsolated(tx, model.VertexRef{Color: model.Task, ID: id}); err != nil {
				return err
			}
		}
	}
	return nil
}

// vertexHasExplicitEdge reports whether ref has any incident edge whose
// type carries an explicit origin (Explicit or Both) — the store's stand-in
// for "is currently declared by the description".
func vertexHasExplicitEdge(tx *store.Tx, ref model.VertexRef) (bool, error) {
	out, err := tx.Outgoing(ref)
	if err != nil {
		return false, err
	}
	for _, n := range out {
		if n.Type != model.Implicit {
			return true, nil
		}
	}
	in, err := tx.Incoming(ref)
	if err != nil {
		return false, err
	}
	for _, n := range in {
		if n.Type != model.Implicit {
			return true, nil
		}
	}
	return false, nil
}

// dropExplicitEdges demotes or removes every incident edge with an explicit
// origin, leaving purely-implicit edges untouched (Syncer never touches
// implicit edges, §4.3 step 6).
func dropExplicitEdges(tx *store.Tx, ref model.VertexRef) error {
	out, err := tx.Outgoing(ref)
	if err != nil {
		return err
	}
	for _, n := range out {
		if n.Type == model.Implicit {
			continue
		}
		if err := demoteOrRemove(tx, model.EdgeKey{From: ref, To: n.Ref, Type: n.Type}, model.Explicit); err != nil {
			return err
		}
	}
	in, err := tx.Incoming(ref)
	if err != nil {
		return err
	}
	for _, n := range in {
		if n.Type == model.Implicit {
			continue
		}
		if err := demoteOrRemove(tx, model.EdgeKey{From: n.Ref, To: ref, Type: n.Type}, model.Explicit); err != nil {
			return err
		}
	}
	return nil
}

func removeIfIsolated(tx *store.Tx, ref model.VertexRef) error {
	out, err := tx.DegreeOut(ref)
	if err != nil {
		return err
	}
	in, err := tx.DegreeIn(ref)
	if err != nil {
		return err
	}
	if out > 0 || in > 0 {
		return nil
	}
	if ref.Color == model.Resource {
		return tx.RemoveResource(ref.ID)
	}
	return tx.RemoveTask(ref.ID)
}

// demoteOrRemove applies model.Demote to the stored edge losing, and
// rewrites or deletes the edge row accordingly.
func demoteOrRemove(tx *store.Tx, key model.EdgeKey, losing model.EdgeType) error {
	remaining, ok := model.Demote(key.Type, losing)
	if err := tx.RemoveEdge(key); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return tx.PutEdge(model.EdgeKey{From: key.From, To: key.To, Type: remaining})
}

// syncExplicitEdges re-applies every rule's declared input/output edges,
// upserting (promoting implicit->both where an implicit edge already
// exists) so this pass is idempotent when the declarations are unchanged.
func syncExplicitEdges(tx *store.Tx, rules []Rule) error {
	for _, r := range rules {
		taskID, err := tx.FindTaskByKey(r.Task)
		if err != nil {
			return berrors.WrapBuildDescription(err, "task %q not found after vertex sync", r.Task)
		}
		taskRef := model.VertexRef{Color: model.Task, ID: taskID}
		for _, path := range r.Inputs {
			resID, err := tx.FindResourceByPath(path)
			if err != nil {
				return berrors.WrapBuildDescription(err, "input resource %q not found after vertex sync", path)
			}
			if err := upsertExplicit(tx, model.VertexRef{Color: model.Resource, ID: resID}, taskRef); err != nil {
				return err
			}
		}
		for _, path := range r.Outputs {
			resID, err := tx.FindResourceByPath(path)
			if err != nil {
				return berrors.WrapBuildDescription(err, "output resource %q not found after vertex sync", path)
			}
			if err := upsertExplicit(tx, taskRef, model.VertexRef{Color: model.Resource, ID: resID}); err != nil {
				return err
			}
		}
	}
	return nil
}

func upsertExplicit(tx *store.Tx, from, to model.VertexRef) error {
	for _, t := range []model.EdgeType{model.Explicit, model.Both} {
		exists, err := tx.EdgeExists(model.EdgeKey{From: from, To: to, Type: t})
		if err != nil {
			return err
		}
		if exists {
			return nil // already explicit (or promoted); nothing to do
		}
	}
	exists, err := tx.EdgeExists(model.EdgeKey{From: from, To: to, Type: model.Implicit})
	if err != nil {
		return err
	}
	if exists {
		if err := tx.RemoveEdge(model.EdgeKey{From: from, To: to, Type: model.Implicit}); err != nil {
			return err
		}
		return tx.PutEdge(model.EdgeKey{From: from, To: to, Type: model.Promote(model.Implicit, model.Explicit)})
	}
	return tx.PutEdge(model.EdgeKey{From: from, To: to, Type: model.Explicit})
}

func rescanSurvivingResources(tx *store.Tx, declared []string, scanner Scanner) error {
	if scanner == nil {
		return nil
	}
	for _, path := range declared {
		id, err := tx.FindResourceByPath(path)
		if err != nil {
			return err
		}
		rec, err := tx.LookupResource(id)
		if err != nil {
			return err
		}
		status, checksum, err := scanner.Scan(path)
		if err != nil {
			return berrors.WrapIO(err, "scan resource %q", path)
		}
		if status == rec.Status && bytesEqual(checksum, rec.Checksum) {
			continue
		}
		rec.Status = status
		rec.Checksum = checksum
		if err := tx.UpdateResource(rec); err != nil {
			return err
		}
		if err := tx.AddPending(model.VertexRef{Color: model.Resource, ID: id}); err != nil {
			return err
		}
	}
	return nil
}
