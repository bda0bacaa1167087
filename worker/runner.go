// Package worker implements the worker loop: fetch a job from the
// queue, dispatch its next step, persist the result, and requeue it if
// it isn't terminal yet.
package worker

import (
	"context"
	"errors"
	"log/slog"

	ergate "github.com/ergatehq/ergate"
	"github.com/ergatehq/ergate/internal/shield"
)

// Lifespan is an optional scoped resource entered before the worker's
// main loop and released after it exits, for bootstrap/teardown such as
// opening database handles.
type Lifespan interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// Metrics receives counters for the outcomes a JobRunner observes.
// Implementations are expected to be safe for concurrent use, though a
// single worker only ever calls them from its own loop.
type Metrics interface {
	StepDispatched(workflow, step string)
	JobTerminal(workflow string, status ergate.JobStatus)
	JobRequeued(workflow string)
}

// noopMetrics satisfies Metrics without recording anything.
type noopMetrics struct{}

func (noopMetrics) StepDispatched(string, string)       {}
func (noopMetrics) JobTerminal(string, ergate.JobStatus) {}
func (noopMetrics) JobRequeued(string)                  {}

// JobRunner implements one worker cycle: resolve the job's workflow,
// dispatch its next step, persist the outcome, and requeue if
// non-terminal. It holds no state across cycles beyond its
// collaborators.
type JobRunner struct {
	Registry   *ergate.WorkflowRegistry
	Queue      ergate.Queue
	StateStore ergate.StateStore
	Hooks      *ErrorHookHandler
	Signals    *SignalDispatcher
	Metrics    Metrics
	Log        *slog.Logger
}

// NewJobRunner wires the collaborators a worker needs. hooks and signals
// may be nil, in which case empty handlers are created; metrics may be
// nil, in which case outcomes are simply not recorded.
func NewJobRunner(registry *ergate.WorkflowRegistry, queue ergate.Queue, store ergate.StateStore, hooks *ErrorHookHandler, signals *SignalDispatcher, metrics Metrics, log *slog.Logger) *JobRunner {
	if log == nil {
		log = slog.Default()
	}
	if hooks == nil {
		hooks = NewErrorHookHandler(log)
	}
	if signals == nil {
		signals = NewSignalDispatcher(log)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &JobRunner{Registry: registry, Queue: queue, StateStore: store, Hooks: hooks, Signals: signals, Metrics: metrics, Log: log}
}

// RunOne executes exactly one worker cycle on job: resolve, dispatch,
// persist, requeue. It is the unit the Worker loop repeats, and is
// exported directly so replay/idempotence tests can drive a single
// cycle without a Queue.
func (r *JobRunner) RunOne(ctx context.Context, job ergate.Job) error {
	if job.Status == ergate.StatusCancelling {
		job.MarkCancelled()
		if err := r.StateStore.Update(ctx, job); err != nil {
			return err
		}
		r.Metrics.JobTerminal(job.WorkflowName, job.Status)
		return nil
	}

	wf, err := r.Registry.Get(job.WorkflowName)
	if err != nil {
		job.MarkFailed(err.Error())
		if uerr := r.StateStore.Update(ctx, job); uerr != nil {
			return uerr
		}
		r.Hooks.Notify(job, err)
		r.Metrics.JobTerminal(job.WorkflowName, job.Status)
		return nil
	}

	// Persist the RUNNING snapshot, with the step about to run, before
	// dispatching it.
	running := job
	running.MarkRunning()
	if running.StepName == "" && running.StepsCompleted < len(wf.Steps()) {
		running.StepName = wf.Steps()[running.StepsCompleted].Name()
	}
	if err := r.StateStore.Update(ctx, running); err != nil {
		return err
	}

	r.Signals.Fire(SignalJobRunStart, job)
	r.Metrics.StepDispatched(job.WorkflowName, job.StepName)

	updated, dispatchErr := wf.Dispatch(ctx, job)

	if err := r.StateStore.Update(ctx, updated); err != nil {
		r.Log.ErrorContext(ctx, "persisting job state failed", "job_id", updated.ID, "error", err)
		return err
	}

	r.Signals.Fire(SignalJobRunEnd, updated)

	if dispatchErr != nil {
		var abort *ergate.AbortJob
		if !errors.As(dispatchErr, &abort) {
			r.Signals.Fire(SignalJobRunFail, updated)
			r.Hooks.Notify(updated, dispatchErr)
		}
	}

	if updated.ShouldBeRequeued() {
		if err := r.Queue.Put(ctx, updated); err != nil {
			return err
		}
		r.Metrics.JobRequeued(updated.WorkflowName)
	} else {
		r.Metrics.JobTerminal(updated.WorkflowName, updated.Status)
	}
	return nil
}

// Worker repeatedly pulls a job from the queue, shields the critical
// section that dispatches and persists it, and loops until ctx is
// cancelled. The blocking queue read happens outside the shield so an
// idle worker stops immediately on signal.
type Worker struct {
	Runner   *JobRunner
	Lifespan Lifespan
	Log      *slog.Logger
}

// NewWorker builds a Worker around runner. lifespan may be nil.
func NewWorker(runner *JobRunner, lifespan Lifespan, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{Runner: runner, Lifespan: lifespan, Log: log}
}

// Run blocks until ctx is cancelled, repeatedly fetching and processing
// jobs. It returns ctx.Err() on cancellation and any queue read error
// otherwise; an error from a job cycle (RunOne) is logged and the loop
// goes on.
func (w *Worker) Run(ctx context.Context) error {
	if w.Lifespan != nil {
		if err := w.Lifespan.Open(ctx); err != nil {
			return err
		}
		defer func() {
			if err := w.Lifespan.Close(context.Background()); err != nil {
				w.Log.Error("lifespan close failed", "error", err)
			}
		}()
	}

	for {
		job, err := w.Runner.Queue.GetOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		release := shield.Enter()
		err = w.Runner.RunOne(ctx, job)
		release()

		if err != nil {
			w.Log.Error("job cycle failed", "job_id", job.ID, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
