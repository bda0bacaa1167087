package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ergate "github.com/ergatehq/ergate"
)

func TestCreateGetUpdateRoundTrip(t *testing.T) {
	s := New(1)
	job := ergate.Job{ID: "j1", WorkflowName: "onboard", Status: ergate.StatusPending}
	require.NoError(t, s.Create(context.Background(), job))

	got, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, ergate.StatusPending, got.Status)

	got.Status = ergate.StatusRunning
	require.NoError(t, s.Update(context.Background(), got))

	got2, err := s.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, ergate.StatusRunning, got2.Status)
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := New(1)
	job := ergate.Job{ID: "j1"}
	require.NoError(t, s.Create(context.Background(), job))
	err := s.Create(context.Background(), job)
	assert.Error(t, err)
}

func TestGetMissingJobErrors(t *testing.T) {
	s := New(1)
	_, err := s.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestFetchManyAndTransitionToQueuedSelectsDueJobsOnly(t *testing.T) {
	s := New(4)
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
}

func TestPutAndGetOneRoundTrip(t *testing.T) {
	s := New(1)
	job := ergate.Job{ID: "j1"}
	require.NoError(t, s.Put(context.Background(), job))

	got, err := s.GetOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "j1", got.ID)
}

func TestPutManyPreservesOrder(t *testing.T) {
	s := New(3)
	jobs := []ergate.Job{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	require.NoError(t, s.PutMany(context.Background(), jobs))

	for _, want := range jobs {
		got, err := s.GetOne(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
	}
}

func TestGetOneRespectsContextCancellation(t *testing.T) {
	s := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.GetOne(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
