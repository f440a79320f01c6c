package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brilliant-build/bbuild/internal/model"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true, SyncWrites: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_SeedsDescriptionResource(t *testing.T) {
	s := openTest(t)
	err := s.View(func(tx *Tx) error {
		rec, err := tx.LookupResource(model.DescriptionResourceID)
		require.NoError(t, err)
		assert.Equal(t, model.DescriptionResourceID, rec.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestAddResource_RoundTrip(t *testing.T) {
	s := openTest(t)
	var id uint64
	err := s.Update(func(tx *Tx) error {
		var err error
		id, err = tx.AddResource("src/main.go", model.StatusFile, []byte{1, 2, 3, 4})
		return err
	})
	require.NoError(t, err)
	assert.NotEqual(t, model.DescriptionResourceID, id)

	err = s.View(func(tx *Tx) error {
		rec, err := tx.LookupResource(id)
		require.NoError(t, err)
		assert.Equal(t, "src/main.go", rec.Path)
		assert.Equal(t, model.StatusFile, rec.Status)

		found, err := tx.FindResourceByPath("src/main.go")
		require.NoError(t, err)
		assert.Equal(t, id, found)
		return nil
	})
	require.NoError(t, err)
}

func TestAddResource_DuplicatePathRejected(t *testing.T) {
	s := openTest(t)
	err := s.Update(func(tx *Tx) error {
		if _, err := tx.AddResource("a.txt", model.StatusFile, nil); err != nil {
			return err
		}
		_, err := tx.AddResource("a.txt", model.StatusFile, nil)
		return err
	})
	assert.Error(t, err)
}

func TestAddTask_NaturalKeyUniqueness(t *testing.T) {
	s := openTest(t)
	key := model.TaskKey{Commands: [][]string{{"go", "build"}}, WorkingDirectory: "/repo"}

	var id uint64
	err := s.Update(func(tx *Tx) error {
		var err error
		id, err = tx.AddTask(&model.TaskRecord{Commands: key.Commands, WorkingDirectory: key.WorkingDirectory})
		return err
	})
	require.NoError(t, err)

	err = s.Update(func(tx *Tx) error {
		_, err := tx.AddTask(&model.TaskRecord{Commands: key.Commands, WorkingDirectory: key.WorkingDirectory})
		return err
	})
	assert.Error(t, err)

	err = s.View(func(tx *Tx) error {
		found, err := tx.FindTaskByKey(key)
		require.NoError(t, err)
		assert.Equal(t, id, found)
		return nil
	})
	require.NoError(t, err)
}

func TestEdges_PutExistsDegreeRemove(t *testing.T) {
	s := openTest(t)
	var resID, taskID uint64
	err := s.Update(func(tx *Tx) error {
		var err error
		resID, err = tx.AddResource("in.txt", model.StatusFile, nil)
		if err != nil {
			return err
		}
		taskID, err = tx.AddTask(&model.TaskRecord{Commands: [][]string{{"cat", "in.txt"}}, WorkingDirectory: "/"})
		return err
	})
	require.NoError(t, err)

	resRef := model.VertexRef{Color: model.Resource, ID: resID}
	taskRef := model.VertexRef{Color: model.Task, ID: taskID}
	key := model.EdgeKey{From: resRef, To: taskRef, Type: model.Explicit}

	err = s.Update(func(tx *Tx) error { return tx.PutEdge(key) })
	require.NoError(t, err)

	err = s.View(func(tx *Tx) error {
		exists, err := tx.EdgeExists(key)
		require.NoError(t, err)
		assert.True(t, exists)

		out, err := tx.DegreeOut(resRef)
		require.NoError(t, err)
		assert.Equal(t, 1, out)

		in, err := tx.DegreeIn(taskRef)
		require.NoError(t, err)
		assert.Equal(t, 1, in)

		neighbors, err := tx.Outgoing(resRef)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, taskRef, neighbors[0].Ref)
		assert.Equal(t, model.Explicit, neighbors[0].Type)
		return nil
	})
	require.NoError(t, err)

	err = s.Update(func(tx *Tx) error { return tx.RemoveEdge(key) })
	require.NoError(t, err)

	err = s.View(func(tx *Tx) error {
		exists, err := tx.EdgeExists(key)
		require.NoError(t, err)
		assert.False(t, exists)
		return nil
	})
	require.NoError(t, err)
}

func TestRemoveResource_CascadesEdgesAndPending(t *testing.T) {
	s := openTest(t)
	var resID, taskID uint64
	err := s.Update(func(tx *Tx) error {
		var err error
		resID, err = tx.AddResource("in.txt", model.StatusFile, nil)
		if err != nil {
			return err
		}
		taskID, err = tx.AddTask(&model.TaskRecord{Commands: [][]string{{"cat", "in.txt"}}, WorkingDirectory: "/"})
		if err != nil {
			return err
		}
		resRef := model.VertexRef{Color: model.Resource, ID: resID}
		taskRef := model.VertexRef{Color: model.Task, ID: taskID}
		if err := tx.PutEdge(model.EdgeKey{From: resRef, To: taskRef, Type: model.Explicit}); err != nil {
			return err
		}
		return tx.AddPending(resRef)
	})
	require.NoError(t, err)

	err = s.Update(func(tx *Tx) error { return tx.RemoveResource(resID) })
	require.NoError(t, err)

	err = s.View(func(tx *Tx) error {
		_, err := tx.LookupResource(resID)
		assert.ErrorIs(t, err, ErrNotFound)

		in, err := tx.DegreeIn(model.VertexRef{Color: model.Task, ID: taskID})
		require.NoError(t, err)
		assert.Equal(t, 0, in)

		pending, err := tx.IsPending(model.VertexRef{Color: model.Resource, ID: resID})
		require.NoError(t, err)
		assert.False(t, pending)
		return nil
	})
	require.NoError(t, err)
}

func TestPendingSet_AddIsPendingRemove(t *testing.T) {
	s := openTest(t)
	var id uint64
	err := s.Update(func(tx *Tx) error {
		var err error
		id, err = tx.AddResource("x.txt", model.StatusFile, nil)
		return err
	})
	require.NoError(t, err)
	ref := model.VertexRef{Color: model.Resource, ID: id}

	err = s.Update(func(tx *Tx) error { return tx.AddPending(ref) })
	require.NoError(t, err)

	err = s.View(func(tx *Tx) error {
		pending, err := tx.IsPending(ref)
		require.NoError(t, err)
		assert.True(t, pending)

		ids, err := tx.PendingResources()
		require.NoError(t, err)
		assert.Contains(t, ids, id)
		return nil
	})
	require.NoError(t, err)

	err = s.Update(func(tx *Tx) error { return tx.RemovePending(ref) })
	require.NoError(t, err)

	err = s.View(func(tx *Tx) error {
		pending, err := tx.IsPending(ref)
		require.NoError(t, err)
		assert.False(t, pending)
		return nil
	})
	require.NoError(t, err)
}

func TestEnumerateResources_SkipsDescriptionByDefault(t *testing.T) {
	s := openTest(t)
	err := s.Update(func(tx *Tx) error {
		_, err := tx.AddResource("a.txt", model.StatusFile, nil)
		return err
	})
	require.NoError(t, err)

	err = s.View(func(tx *Tx) error {
		withoutDesc, err := tx.EnumerateResources(false)
		require.NoError(t, err)
		for _, r := range withoutDesc {
			assert.False(t, model.IsDescription(r.ID))
		}

		withDesc, err := tx.EnumerateResources(true)
		require.NoError(t, err)
		assert.Len(t, withDesc, len(withoutDesc)+1)
		return nil
	})
	require.NoError(t, err)
}

func TestIslands_FindsVertexWithNoEdges(t *testing.T) {
	s := openTest(t)
	var isolatedID uint64
	err := s.Update(func(tx *Tx) error {
		var err error
		isolatedID, err = tx.AddResource("orphan.txt", model.StatusFile, nil)
		return err
	})
	require.NoError(t, err)

	err = s.View(func(tx *Tx) error {
		islands, err := tx.Islands()
		require.NoError(t, err)
		found := false
		for _, v := range islands {
			if v.Color == model.Resource && v.ID == isolatedID {
				found = true
			}
			// the reserved description resource must never appear; it is
			// excluded by EnumerateResources(false), which Islands uses.
			assert.False(t, model.IsDescription(v.ID) && v.Color == model.Resource)
		}
		assert.True(t, found)
		return nil
	})
	require.NoError(t, err)
}
