package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brilliant-build/bbuild/internal/graph"
	"github.com/brilliant-build/bbuild/internal/model"
	"github.com/brilliant-build/bbuild/internal/runner"
	"github.com/brilliant-build/bbuild/internal/store"
)

type fakeRunner struct {
	fn func(workingDir string) (runner.Result, error)
}

func (f fakeRunner) Run(_ context.Context, _ [][]string, workingDir string) (runner.Result, error) {
	return f.fn(workingDir)
}

type fakeScanner struct {
	checksums map[string][]byte
}

func (f fakeScanner) Scan(path string) (model.ResourceStatus, []byte, error) {
	if b, ok := f.checksums[path]; ok {
		return model.StatusFile, b, nil
	}
	return model.StatusFile, []byte("default:" + path), nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRun_FreshTaskExecutesAndPromotesObservedExplicitEdges(t *testing.T) {
	s := openTestStore(t)
	var resA, taskID, resB uint64
	err := s.Update(func(tx *store.Tx) error {
		var err error
		resA, err = tx.AddResource("a.txt", model.StatusFile, nil)
		if err != nil {
			return err
		}
		taskID, err = tx.AddTask(&model.TaskRecord{Commands: [][]string{{"build"}}, WorkingDirectory: "/t"})
		if err != nil {
			return err
		}
		resB, err = tx.AddResource("b.txt", model.StatusUnknown, nil)
		if err != nil {
			return err
		}
		aRef := model.VertexRef{Color: model.Resource, ID: resA}
		tRef := model.VertexRef{Color: model.Task, ID: taskID}
		bRef := model.VertexRef{Color: model.Resource, ID: resB}
		if err := tx.PutEdge(model.EdgeKey{From: aRef, To: tRef, Type: model.Explicit}); err != nil {
			return err
		}
		if err := tx.PutEdge(model.EdgeKey{From: tRef, To: bRef, Type: model.Explicit}); err != nil {
			return err
		}
		if err := tx.AddPending(aRef); err != nil {
			return err
		}
		return tx.AddPending(tRef)
	})
	require.NoError(t, err)

	g, err := graph.Build(s)
	require.NoError(t, err)

	ex := New(Options{
		Store: s,
		Runner: fakeRunner{fn: func(string) (runner.Result, error) {
			return runner.Result{ExitCode: 0, Reads: []string{"a.txt"}, Writes: []string{"b.txt"}}, nil
		}},
		Scanner: fakeScanner{checksums: map[string][]byte{"b.txt": []byte("built-v1")}},
		Pool:    2,
	})

	rep, err := ex.Run(context.Background(), g)
	require.NoError(t, err)
	assert.Contains(t, rep.Executed, taskID)
	assert.Empty(t, rep.Failures)

	err = s.View(func(tx *store.Tx) error {
		aRef := model.VertexRef{Color: model.Resource, ID: resA}
		tRef := model.VertexRef{Color: model.Task, ID: taskID}
		bRef := model.VertexRef{Color: model.Resource, ID: resB}

		both, err := tx.EdgeExists(model.EdgeKey{From: aRef, To: tRef, Type: model.Both})
		if err != nil {
			return err
		}
		assert.True(t, both, "a.txt->task edge should be promoted to both")

		both, err = tx.EdgeExists(model.EdgeKey{From: tRef, To: bRef, Type: model.Both})
		if err != nil {
			return err
		}
		assert.True(t, both, "task->b.txt edge should be promoted to both")

		rec, err := tx.LookupResource(resB)
		if err != nil {
			return err
		}
		assert.Equal(t, []byte("built-v1"), rec.Checksum)

		taskPending, err := tx.IsPending(tRef)
		if err != nil {
			return err
		}
		assert.False(t, taskPending)

		resourcePending, err := tx.IsPending(aRef)
		if err != nil {
			return err
		}
		assert.False(t, resourcePending, "leaf input should be settled once observed")
		return nil
	})
	require.NoError(t, err)
}

func TestRun_NoOpRerunExecutesNothing(t *testing.T) {
	s := openTestStore(t)
	var taskID uint64
	err := s.Update(func(tx *store.Tx) error {
		resA, err := tx.AddResource("a.txt", model.StatusFile, nil)
		if err != nil {
			return err
		}
		taskID, err = tx.AddTask(&model.TaskRecord{Commands: [][]string{{"build"}}, WorkingDirectory: "/t"})
		if err != nil {
			return err
		}
		resB, err := tx.AddResource("b.txt", model.StatusUnknown, nil)
		if err != nil {
			return err
		}
		aRef := model.VertexRef{Color: model.Resource, ID: resA}
		tRef := model.VertexRef{Color: model.Task, ID: taskID}
		bRef := model.VertexRef{Color: model.Resource, ID: resB}
		if err := tx.PutEdge(model.EdgeKey{From: aRef, To: tRef, Type: model.Explicit}); err != nil {
			return err
		}
		if err := tx.PutEdge(model.EdgeKey{From: tRef, To: bRef, Type: model.Explicit}); err != nil {
			return err
		}
		if err := tx.AddPending(aRef); err != nil {
			return err
		}
		return tx.AddPending(tRef)
	})
	require.NoError(t, err)

	runOnce := func() Report {
		g, err := graph.Build(s)
		require.NoError(t, err)
		ex := New(Options{
			Store: s,
			Runner: fakeRunner{fn: func(string) (runner.Result, error) {
				return runner.Result{ExitCode: 0, Reads: []string{"a.txt"}, Writes: []string{"b.txt"}}, nil
			}},
			Scanner: fakeScanner{checksums: map[string][]byte{"b.txt": []byte("built-v1")}},
			Pool:    1,
		})
		rep, err := ex.Run(context.Background(), g)
		require.NoError(t, err)
		return rep
	}

	first := runOnce()
	require.Contains(t, first.Executed, taskID)

	second := runOnce()
	assert.Empty(t, second.Executed, "rerun with no external change must execute nothing")
	assert.Contains(t, second.Skipped, taskID)
}

// TestRun_NoOpRerunExecutesNothing_TwoStagePipeline regresses the
// a -> T1 -> b -> T2 -> c chain (spec §8 idempotency, scenario 2
// generalized): b is an intermediate output with its own consumer T2, not a
// leaf. A first run must execute both stages; a second run against
// unchanged inputs must execute neither — including T2, whose only staleness
// signal on the first run was b's persisted pending flag.
func TestRun_NoOpRerunExecutesNothing_TwoStagePipeline(t *testing.T) {
	s := openTestStore(t)
	var t1, t2 uint64
	err := s.Update(func(tx *store.Tx) error {
		resA, err := tx.AddResource("a.txt", model.StatusFile, nil)
		if err != nil {
			return err
		}
		t1, err = tx.AddTask(&model.TaskRecord{Commands: [][]string{{"stage1"}}, WorkingDirectory: "/t1"})
		if err != nil {
			return err
		}
		resB, err := tx.AddResource("b.txt", model.StatusUnknown, nil)
		if err != nil {
			return err
		}
		t2, err = tx.AddTask(&model.TaskRecord{Commands: [][]string{{"stage2"}}, WorkingDirectory: "/t2"})
		if err != nil {
			return err
		}
		resC, err := tx.AddResource("c.txt", model.StatusUnknown, nil)
		if err != nil {
			return err
		}

		aRef := model.VertexRef{Color: model.Resource, ID: resA}
		t1Ref := model.VertexRef{Color: model.Task, ID: t1}
		bRef := model.VertexRef{Color: model.Resource, ID: resB}
		t2Ref := model.VertexRef{Color: model.Task, ID: t2}
		cRef := model.VertexRef{Color: model.Resource, ID: resC}

		edges := []model.EdgeKey{
			{From: aRef, To: t1Ref, Type: model.Explicit},
			{From: t1Ref, To: bRef, Type: model.Explicit},
			{From: bRef, To: t2Ref, Type: model.Explicit},
			{From: t2Ref, To: cRef, Type: model.Explicit},
		}
		for _, e := range edges {
			if err := tx.PutEdge(e); err != nil {
				return err
			}
		}
		if err := tx.AddPending(aRef); err != nil {
			return err
		}
		if err := tx.AddPending(t1Ref); err != nil {
			return err
		}
		return tx.AddPending(t2Ref)
	})
	require.NoError(t, err)

	runOnce := func() Report {
		g, err := graph.Build(s)
		require.NoError(t, err)
		ex := New(Options{
			Store: s,
			Runner: fakeRunner{fn: func(workingDir string) (runner.Result, error) {
				switch workingDir {
				case "/t1":
					return runner.Result{ExitCode: 0, Reads: []string{"a.txt"}, Writes: []string{"b.txt"}}, nil
				default:
					return runner.Result{ExitCode: 0, Reads: []string{"b.txt"}, Writes: []string{"c.txt"}}, nil
				}
			}},
			Scanner: fakeScanner{checksums: map[string][]byte{"b.txt": []byte("built-v1"), "c.txt": []byte("built-v1")}},
			Pool:    1,
		})
		rep, err := ex.Run(context.Background(), g)
		require.NoError(t, err)
		return rep
	}

	first := runOnce()
	require.Contains(t, first.Executed, t1)
	require.Contains(t, first.Executed, t2)

	second := runOnce()
	assert.Empty(t, second.Executed, "rerun with no external change must execute nothing, including the intermediate stage")
	assert.Contains(t, second.Skipped, t1)
	assert.Contains(t, second.Skipped, t2)
}

func TestRun_FailureIsolation(t *testing.T) {
	s := openTestStore(t)
	var t1, t2, t3 uint64
	err := s.Update(func(tx *store.Tx) error {
		var resOut1 uint64
		resA, err := tx.AddResource("a", model.StatusFile, nil)
		if err != nil {
			return err
		}
		resB, err := tx.AddResource("b", model.StatusFile, nil)
		if err != nil {
			return err
		}
		t1, err = tx.AddTask(&model.TaskRecord{Commands: [][]string{{"x"}}, WorkingDirectory: "/t1"})
		if err != nil {
			return err
		}
		t2, err = tx.AddTask(&model.TaskRecord{Commands: [][]string{{"x"}}, WorkingDirectory: "/t2"})
		if err != nil {
			return err
		}
		t3, err = tx.AddTask(&model.TaskRecord{Commands: [][]string{{"x"}}, WorkingDirectory: "/t3"})
		if err != nil {
			return err
		}
		resOut1, err = tx.AddResource("out1", model.StatusUnknown, nil)
		if err != nil {
			return err
		}
		resOut2, err := tx.AddResource("out2", model.StatusUnknown, nil)
		if err != nil {
			return err
		}

		aRef := model.VertexRef{Color: model.Resource, ID: resA}
		bRef := model.VertexRef{Color: model.Resource, ID: resB}
		t1Ref := model.VertexRef{Color: model.Task, ID: t1}
		t2Ref := model.VertexRef{Color: model.Task, ID: t2}
		t3Ref := model.VertexRef{Color: model.Task, ID: t3}
		out1Ref := model.VertexRef{Color: model.Resource, ID: resOut1}
		out2Ref := model.VertexRef{Color: model.Resource, ID: resOut2}

		edges := []model.EdgeKey{
			{From: aRef, To: t1Ref, Type: model.Explicit},
			{From: t1Ref, To: out1Ref, Type: model.Explicit},
			{From: bRef, To: t2Ref, Type: model.Explicit},
			{From: t2Ref, To: out2Ref, Type: model.Explicit},
			{From: out1Ref, To: t3Ref, Type: model.Explicit},
		}
		for _, e := range edges {
			if err := tx.PutEdge(e); err != nil {
				return err
			}
		}
		for _, ref := range []model.VertexRef{aRef, bRef, t1Ref, t2Ref, t3Ref} {
			if err := tx.AddPending(ref); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	g, err := graph.Build(s)
	require.NoError(t, err)

	ex := New(Options{
		Store: s,
		Runner: fakeRunner{fn: func(workingDir string) (runner.Result, error) {
			switch workingDir {
			case "/t1":
				return runner.Result{ExitCode: 1, Stderr: "boom"}, nil
			case "/t2":
				return runner.Result{ExitCode: 0, Reads: []string{"b"}, Writes: []string{"out2"}}, nil
			default:
				return runner.Result{ExitCode: 0, Reads: []string{"out1"}}, nil
			}
		}},
		Scanner: fakeScanner{},
		Pool:    4,
	})

	rep, err := ex.Run(context.Background(), g)
	assert.Error(t, err, "a run with an accumulated task failure reports a non-nil error")

	assert.Contains(t, rep.Executed, t2)
	assert.NotContains(t, rep.Executed, t1)
	assert.NotContains(t, rep.Executed, t3)
	assert.NotContains(t, rep.Skipped, t3, "t3 is never dispatched: its predecessor withheld release")

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, t1, rep.Failures[0].TaskID)

	err = s.View(func(tx *store.Tx) error {
		pending, err := tx.IsPending(model.VertexRef{Color: model.Task, ID: t1})
		if err != nil {
			return err
		}
		assert.True(t, pending, "failed task must remain pending")
		return nil
	})
	require.NoError(t, err)
}
