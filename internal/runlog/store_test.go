package runlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndLatest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	_, ok, err := s.Latest()
	require.NoError(t, err)
	assert.False(t, ok, "no run saved yet")

	run := Run{
		RunID:     "r1",
		GraphHash: "abc",
		StartTime: time.Unix(1000, 0).UTC(),
		EndTime:   time.Unix(1001, 0).UTC(),
		Status:    StatusSucceeded,
		Executed:  2,
		Skipped:   1,
	}
	require.NoError(t, s.Save(run))

	latest, ok, err := s.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, run.RunID, latest.RunID)
	assert.Equal(t, run.Status, latest.Status)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)
}

func TestStore_SaveRejectsInvalidRun(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	err = s.Save(Run{})
	assert.Error(t, err)
}

func TestStore_ListOrdersRunsLexicographically(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	for _, id := range []string{"r3", "r1", "r2"} {
		require.NoError(t, s.Save(Run{
			RunID:     id,
			GraphHash: "h",
			StartTime: time.Unix(1, 0).UTC(),
			Status:    StatusSucceeded,
		}))
	}

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids)
}
