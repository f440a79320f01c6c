package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brilliant-build/bbuild/internal/model"
	"github.com/brilliant-build/bbuild/internal/store"
)

type fakeScanner map[string][2]any // path -> [status, checksum]

func (f fakeScanner) Scan(path string) (model.ResourceStatus, []byte, error) {
	v, ok := f[path]
	if !ok {
		return model.StatusMissing, nil, nil
	}
	return v[0].(model.ResourceStatus), v[1].([]byte), nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func basicRule() Rule {
	return Rule{
		Task:    model.TaskKey{Commands: [][]string{{"cp", "a.txt", "b.txt"}}, WorkingDirectory: "/repo"},
		Inputs:  []string{"a.txt"},
		Outputs: []string{"b.txt"},
	}
}

func TestSync_FreshBuildCreatesVerticesAndMarksNewTaskPending(t *testing.T) {
	s := openTestStore(t)
	scanner := fakeScanner{"a.txt": {model.StatusFile, []byte{1}}, "b.txt": {model.StatusMissing, []byte(nil)}}

	err := Sync(s, []byte("desc-v1"), []Rule{basicRule()}, scanner)
	require.NoError(t, err)

	err = s.View(func(tx *store.Tx) error {
		aID, err := tx.FindResourceByPath("a.txt")
		require.NoError(t, err)
		taskID, err := tx.FindTaskByKey(basicRule().Task)
		require.NoError(t, err)

		exists, err := tx.EdgeExists(model.EdgeKey{
			From: model.VertexRef{Color: model.Resource, ID: aID},
			To:   model.VertexRef{Color: model.Task, ID: taskID},
			Type: model.Explicit,
		})
		require.NoError(t, err)
		assert.True(t, exists)

		pendingTasks, err := tx.PendingTasks()
		require.NoError(t, err)
		assert.Contains(t, pendingTasks, taskID)
		return nil
	})
	require.NoError(t, err)
}

func TestSync_RerunWithNoChangesIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	scanner := fakeScanner{"a.txt": {model.StatusFile, []byte{1}}, "b.txt": {model.StatusMissing, []byte(nil)}}

	require.NoError(t, Sync(s, []byte("desc-v1"), []Rule{basicRule()}, scanner))

	var before []model.VertexRef
	err := s.View(func(tx *store.Tx) error {
		resources, err := tx.EnumerateResources(true)
		require.NoError(t, err)
		for _, r := range resources {
			before = append(before, model.VertexRef{Color: model.Resource, ID: r.ID})
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, Sync(s, []byte("desc-v1"), []Rule{basicRule()}, scanner))

	var after []model.VertexRef
	err = s.View(func(tx *store.Tx) error {
		resources, err := tx.EnumerateResources(true)
		require.NoError(t, err)
		for _, r := range resources {
			after = append(after, model.VertexRef{Color: model.Resource, ID: r.ID})
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestSync_RemovedRuleDropsOrphanedVertex(t *testing.T) {
	s := openTestStore(t)
	scanner := fakeScanner{"a.txt": {model.StatusFile, []byte{1}}, "b.txt": {model.StatusMissing, []byte(nil)}}

	require.NoError(t, Sync(s, []byte("desc-v1"), []Rule{basicRule()}, scanner))
	require.NoError(t, Sync(s, []byte("desc-v2"), nil, scanner))

	err := s.View(func(tx *store.Tx) error {
		_, err := tx.FindResourceByPath("a.txt")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.FindTaskByKey(basicRule().Task)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestSync_ChangedDescriptionMarksDescriptionPending(t *testing.T) {
	s := openTestStore(t)
	scanner := fakeScanner{"a.txt": {model.StatusFile, []byte{1}}, "b.txt": {model.StatusMissing, []byte(nil)}}

	require.NoError(t, Sync(s, []byte("v1"), []Rule{basicRule()}, scanner))
	err := s.Update(func(tx *store.Tx) error {
		return tx.RemovePending(model.VertexRef{Color: model.Resource, ID: model.DescriptionResourceID})
	})
	require.NoError(t, err)

	require.NoError(t, Sync(s, []byte("v2"), []Rule{basicRule()}, scanner))

	err = s.View(func(tx *store.Tx) error {
		pending, err := tx.IsPending(model.VertexRef{Color: model.Resource, ID: model.DescriptionResourceID})
		require.NoError(t, err)
		assert.True(t, pending)
		return nil
	})
	require.NoError(t, err)
}
