// Package memory provides an in-process Queue and StateStore backed by
// a mutex-guarded map and a buffered channel. It's the engine's own test
// fixture and the quickstart default for a single-process deployment.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	ergate "github.com/ergatehq/ergate"
)

// Store is both an ergate.Queue and an ergate.StateStore, sharing one
// lock. A single Store instance should be handed to both a worker and a
// publisher in the same process; it is not durable across restarts.
type Store struct {
	mu   sync.Mutex
	jobs map[string]ergate.Job
	ch   chan ergate.Job
}

// New creates an empty Store with a queue buffer of size buf.
func New(buf int) *Store {
	return &Store{
		jobs: make(map[string]ergate.Job),
		ch:   make(chan ergate.Job, buf),
	}
}

// Create persists a brand-new job record.
func (s *Store) Create(ctx context.Context, job ergate.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %q already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// Get returns the current record for id.
func (s *Store) Get(ctx context.Context, id string) (ergate.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ergate.Job{}, fmt.Errorf("job %q not found", id)
	}
	return job, nil
}

// Update persists job's current state.
func (s *Store) Update(ctx context.Context, job ergate.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// FetchManyAndTransitionToQueued selects every PENDING/SCHEDULED job
// whose RequestedStartTime has passed (or is unset), marks it QUEUED,
// and returns the updated records. The map lock makes the
// select-then-transition atomic from any caller's perspective.
func (s *Store) FetchManyAndTransitionToQueued(ctx context.Context) ([]ergate.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var due []ergate.Job
	for id, job := range s.jobs {
		if job.Status != ergate.StatusPending && job.Status != ergate.StatusScheduled {
			continue
		}
		if job.RequestedStartTime != nil && job.RequestedStartTime.After(now) {
			continue
		}
		job.Status = ergate.StatusQueued
		s.jobs[id] = job
		due = append(due, job)
	}
	return due, nil
}

// GetOne blocks until a job is available on the queue or ctx is done.
func (s *Store) GetOne(ctx context.Context) (ergate.Job, error) {
	select {
	case job := <-s.ch:
		return job, nil
	case <-ctx.Done():
		return ergate.Job{}, ctx.Err()
	}
}

// Put enqueues a single job.
func (s *Store) Put(ctx context.Context, job ergate.Job) error {
	select {
	case s.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PutMany enqueues a batch of jobs in order.
func (s *Store) PutMany(ctx context.Context, jobs []ergate.Job) error {
	for _, job := range jobs {
		if err := s.Put(ctx, job); err != nil {
			return err
		}
	}
	return nil
}
