package ergate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Client is the caller-facing surface for submitting and inspecting jobs.
// It talks only to the StateStore; moving a submitted job onto the queue
// is the publisher's job, not the client's.
type Client struct {
	store StateStore
}

// NewClient builds a Client backed by store.
func NewClient(store StateStore) *Client {
	return &Client{store: store}
}

// SubmitOptions customizes a submitted job.
type SubmitOptions struct {
	// RequestedStartTime delays the job until this time; zero means
	// eligible immediately.
	RequestedStartTime time.Time
	// UserContext is opaque data threaded through every step via the
	// Context marker.
	UserContext any
}

// Submit creates a new job for workflowName with the given input value
// and persists it in StatusPending (or StatusScheduled, if
// opts.RequestedStartTime is in the future). It does not enqueue the
// job; the publisher picks it up on its next poll.
func (c *Client) Submit(ctx context.Context, workflowName string, input any, opts SubmitOptions) (Job, error) {
	job := Job{
		ID:                 uuid.NewString(),
		WorkflowName:       workflowName,
		Status:             StatusPending,
		InitialInputValue:  input,
		UserContext:        opts.UserContext,
		RequestedStartTime: nil,
	}
	if !opts.RequestedStartTime.IsZero() {
		t := opts.RequestedStartTime
		job.RequestedStartTime = &t
		if t.After(timeNow()) {
			job.Status = StatusScheduled
		}
	}
	if err := c.store.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("submitting job for workflow %q: %w", workflowName, err)
	}
	return job, nil
}

// Get returns the current record for a submitted job.
func (c *Client) Get(ctx context.Context, id string) (Job, error) {
	job, err := c.store.Get(ctx, id)
	if err != nil {
		return Job{}, fmt.Errorf("fetching job %q: %w", id, err)
	}
	return job, nil
}

var timeNow = time.Now
