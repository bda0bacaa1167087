package worker

import (
	"errors"
	"log/slog"

	ergate "github.com/ergatehq/ergate"
)

// ErrorHook is invoked when a step fails with anything other than the
// engine's own control-flow signals. It receives the job snapshot as it
// stood right after the failure was recorded, and the error that caused
// it.
type ErrorHook func(job ergate.Job, err error)

// hookEntry pairs a hook with a matcher built from its target type via
// errors.As, so registration order (not type specificity) decides which
// hook fires first — the same first-match-wins contract as walking an
// exception's type hierarchy.
type hookEntry struct {
	matches func(err error) bool
	hook    ErrorHook
}

// ErrorHookHandler dispatches a failed job's error to the first
// registered hook whose declared target type matches, via errors.As.
// Hook panics and errors are logged and swallowed; they never affect the
// job's persisted outcome.
type ErrorHookHandler struct {
	log     *slog.Logger
	entries []hookEntry
}

// NewErrorHookHandler creates an empty handler. A nil logger falls back
// to slog.Default().
func NewErrorHookHandler(log *slog.Logger) *ErrorHookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ErrorHookHandler{log: log}
}

// RegisterFunc registers hook for any error that matches via the
// supplied predicate. Most callers should use RegisterErrorHook instead,
// which builds the predicate from a target type automatically.
func (h *ErrorHookHandler) RegisterFunc(matches func(error) bool, hook ErrorHook) {
	h.entries = append(h.entries, hookEntry{matches: matches, hook: hook})
}

// RegisterErrorHook registers hook to fire for any error where
// errors.As finds a T in err's chain, e.g. T = *MyError. With T = error
// the hook matches every error.
func RegisterErrorHook[T error](h *ErrorHookHandler, hook func(job ergate.Job, err T)) {
	h.RegisterFunc(
		func(err error) bool {
			var target T
			return errors.As(err, &target)
		},
		func(job ergate.Job, err error) {
			var target T
			errors.As(err, &target)
			hook(job, target)
		},
	)
}

// Notify walks the registered hooks in order and invokes the first whose
// matcher accepts err. A panic inside a hook is recovered, logged, and
// swallowed, matching the engine's "hook exception" error kind.
func (h *ErrorHookHandler) Notify(job ergate.Job, err error) {
	for _, e := range h.entries {
		if !e.matches(err) {
			continue
		}
		h.invoke(e.hook, job, err)
		return
	}
}

func (h *ErrorHookHandler) invoke(hook ErrorHook, job ergate.Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn("error hook panicked", "job_id", job.ID, "panic", r)
		}
	}()
	hook(job, err)
}
