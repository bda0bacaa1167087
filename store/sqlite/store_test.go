package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ergate "github.com/ergatehq/ergate"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ergate.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRejectsTraversingPath(t *testing.T) {
	// filepath.Join would clean away the "..", so build the literal
	// string by hand to exercise IsPathSafe's traversal check.
	path := t.TempDir() + string(filepath.Separator) + ".." + string(filepath.Separator) + "escaped.db"
	_, err := Open(path)
	assert.Error(t, err)
}

func TestCreateGetUpdateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	job := ergate.Job{ID: "j1", WorkflowName: "onboard", Status: ergate.StatusPending, InitialInputValue: "payload"}
	require.NoError(t, s.Create(context.Background(), job))

	got, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, ergate.StatusPending, got.Status)
	assert.Equal(t, "payload", got.InitialInputValue)

	got.Status = ergate.StatusRunning
	require.NoError(t, s.Update(context.Background(), got))

	got2, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, ergate.StatusRunning, got2.Status)
}

func TestGetMissingJobErrors(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestCreateUpsertsOnConflict(t *testing.T) {
	s := openTestStore(t)
	job := ergate.Job{ID: "j1", Status: ergate.StatusPending}
	require.NoError(t, s.Create(context.Background(), job))

	job.Status = ergate.StatusQueued
	require.NoError(t, s.Create(context.Background(), job))

	got, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, ergate.StatusQueued, got.Status)
}

func TestFetchManyAndTransitionToQueuedSelectsDueJobsOnly(t *testing.T) {
	s := openTestStore(t)
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	require.NoError(t, s.Create(context.Background(), ergate.Job{ID: "due-now", Status: ergate.StatusPending}))
	require.NoError(t, s.Create(context.Background(), ergate.Job{ID: "due-past", Status: ergate.StatusScheduled, RequestedStartTime: &past}))
	require.NoError(t, s.Create(context.Background(), ergate.Job{ID: "not-due", Status: ergate.StatusScheduled, RequestedStartTime: &future}))
	require.NoError(t, s.Create(context.Background(), ergate.Job{ID: "already-running", Status: ergate.StatusRunning}))

	due, err := s.FetchManyAndTransitionToQueued(context.Background())
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, j := range due {
		ids[j.ID] = true
		assert.Equal(t, ergate.StatusQueued, j.Status)
	}
	assert.True(t, ids["due-now"])
	assert.True(t, ids["due-past"])
	assert.False(t, ids["not-due"])
	assert.False(t, ids["already-running"])

	stored, err := s.Get(context.Background(), "due-now")
	require.NoError(t, err)
	assert.Equal(t, ergate.StatusQueued, stored.Status)

	notDue, err := s.Get(context.Background(), "not-due")
	require.NoError(t, err)
	assert.Equal(t, ergate.StatusScheduled, notDue.Status)
}
