package ergate

import "context"

// StateStore is the durable record of every job, independent of the
// Queue. A worker calls Update after every step dispatch, whether the
// job advanced, finished, or failed; a client calls Create/Get to submit
// and inspect jobs; a publisher calls
// FetchManyAndTransitionToQueued to move due jobs onto the queue.
type StateStore interface {
	// Create persists a brand-new job record.
	Create(ctx context.Context, job Job) error
	// Get returns the current record for id.
	Get(ctx context.Context, id string) (Job, error)
	// Update persists job's current state, keyed by its ID.
	Update(ctx context.Context, job Job) error

	// FetchManyAndTransitionToQueued atomically selects every job in
	// StatusPending or StatusScheduled whose RequestedStartTime is
	// unset or has passed, transitions them to StatusQueued, persists
	// that transition, and returns the updated records. A job must
	// never be returned by two concurrent calls to this method.
	FetchManyAndTransitionToQueued(ctx context.Context) ([]Job, error)
}
