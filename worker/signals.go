package worker

import (
	"log/slog"

	ergate "github.com/ergatehq/ergate"
)

// LifecycleSignal names one of the worker's job lifecycle events.
type LifecycleSignal string

const (
	// SignalJobRunStart fires immediately before a step is dispatched.
	SignalJobRunStart LifecycleSignal = "JOB_RUN_START"
	// SignalJobRunEnd fires after a step completes, whatever the
	// outcome (including failure).
	SignalJobRunEnd LifecycleSignal = "JOB_RUN_END"
	// SignalJobRunFail fires only when a step's outcome is a
	// terminal FAILED status.
	SignalJobRunFail LifecycleSignal = "JOB_RUN_FAIL"
)

// SignalObserver receives a lifecycle event for a job.
type SignalObserver func(job ergate.Job)

// SignalDispatcher fans a named lifecycle event out to every registered
// observer for that name. Observer panics are logged and swallowed,
// matching ErrorHookHandler's swallow-on-error policy.
type SignalDispatcher struct {
	log       *slog.Logger
	observers map[LifecycleSignal][]SignalObserver
}

// NewSignalDispatcher creates an empty dispatcher. A nil logger falls
// back to slog.Default().
func NewSignalDispatcher(log *slog.Logger) *SignalDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &SignalDispatcher{log: log, observers: make(map[LifecycleSignal][]SignalObserver)}
}

// On registers observer for signal.
func (d *SignalDispatcher) On(signal LifecycleSignal, observer SignalObserver) {
	d.observers[signal] = append(d.observers[signal], observer)
}

// Fire invokes every observer registered for signal with job, in
// registration order.
func (d *SignalDispatcher) Fire(signal LifecycleSignal, job ergate.Job) {
	for _, obs := range d.observers[signal] {
		d.invoke(signal, obs, job)
	}
}

func (d *SignalDispatcher) invoke(signal LifecycleSignal, obs SignalObserver, job ergate.Job) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("lifecycle observer panicked", "signal", signal, "job_id", job.ID, "panic", r)
		}
	}()
	obs(job)
}
