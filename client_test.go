package ergate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory StateStore for exercising Client
// without depending on any store subpackage.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func newFakeStore() *fakeStore { return &fakeStore{jobs: make(map[string]Job)} }

func (s *fakeStore) Create(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, assert.AnError
	}
	return job, nil
}

func (s *fakeStore) Update(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeStore) FetchManyAndTransitionToQueued(ctx context.Context) ([]Job, error) {
	return nil, nil
}

func TestClientSubmitImmediate(t *testing.T) {
	store := newFakeStore()
	c := NewClient(store)

	job, err := c.Submit(context.Background(), "onboard-user", "payload", SubmitOptions{UserContext: "caller"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, "payload", job.InitialInputValue)
	assert.Equal(t, "caller", job.UserContext)
	assert.Nil(t, job.RequestedStartTime)
}

func TestClientSubmitFutureStartTimeIsScheduled(t *testing.T) {
	store := newFakeStore()
	c := NewClient(store)

	future := time.Now().Add(time.Hour)
	job, err := c.Submit(context.Background(), "onboard-user", nil, SubmitOptions{RequestedStartTime: future})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, job.Status)
	require.NotNil(t, job.RequestedStartTime)
	assert.True(t, job.RequestedStartTime.Equal(future))
}

func TestClientSubmitPastStartTimeStaysPending(t *testing.T) {
	store := newFakeStore()
	c := NewClient(store)

	past := time.Now().Add(-time.Hour)
	job, err := c.Submit(context.Background(), "onboard-user", nil, SubmitOptions{RequestedStartTime: past})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
}

func TestClientGetRoundTrips(t *testing.T) {
	store := newFakeStore()
	c := NewClient(store)

	submitted, err := c.Submit(context.Background(), "onboard-user", "payload", SubmitOptions{})
	require.NoError(t, err)

	got, err := c.Get(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, submitted.ID, got.ID)
}

func TestClientGetMissingJobErrors(t *testing.T) {
	store := newFakeStore()
	c := NewClient(store)

	_, err := c.Get(context.Background(), "does-not-exist")
	assert.Error(t, err)
}
