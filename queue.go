package ergate

import "context"

// Queue is the transport between the publisher and workers. GetOne
// blocks (honoring ctx cancellation) until a job is available; Put and
// PutMany are non-blocking enqueues. Reference implementations live in
// store/memory and store/redis.
type Queue interface {
	// GetOne blocks until a job is available or ctx is cancelled.
	GetOne(ctx context.Context) (Job, error)
	// Put enqueues a single job, used by a worker to requeue a
	// non-terminal job after a step completes.
	Put(ctx context.Context, job Job) error
	// PutMany enqueues a batch of jobs, used by the publisher after a
	// fetch-and-transition cycle.
	PutMany(ctx context.Context, jobs []Job) error
}
