package ergate

import (
	"context"
	"errors"
	"fmt"
)

// Dispatch resolves the step at job.StepsCompleted, builds its
// arguments, invokes it, and interprets the outcome per the engine's
// outcome table. It always returns a Job reflecting the new state —
// RUNNING is set on job before the step runs, and a terminal or QUEUED
// status afterward — along with the error that caused a FAILED outcome,
// if any (nil for every other outcome). Dispatch never panics on a step
// error; a panicking step propagates to the caller's goroutine like any
// Go panic, matching the "the runner does not impose a timeout" design
// note; it does not attempt to recover arbitrary panics into FAILED,
// since Go panics are reserved for unrecoverable bugs, not business
// outcomes.
func (wf *Workflow) Dispatch(ctx context.Context, job Job) (Job, error) {
	if !wf.finalized {
		if err := wf.Finalize(); err != nil {
			job.MarkFailed(err.Error())
			return job, err
		}
	}

	step, ok := wf.StepByName(job.StepName)
	if !ok {
		var err error
		if job.StepName == "" && job.StepsCompleted < len(wf.steps) {
			step = wf.steps[job.StepsCompleted]
		} else {
			err = &UnknownStepError{Workflow: wf.name, Step: job.StepName}
			job.MarkFailed(err.Error())
			return job, err
		}
	}

	job.MarkRunning()
	job.StepName = step.name

	args, release, err := resolveArgs(ctx, step.specs, job.GetInputValue(), job.UserContext)
	if err != nil {
		job.MarkFailed(err.Error())
		return job, err
	}
	defer release()

	returnValue, stepErr := invokeStep(step.fn, args)
	if stepErr == nil {
		var path WorkflowPath = GoToEndPath{}
		if len(step.paths) > 0 {
			path = step.paths[0]
		}
		return wf.advance(job, step, path, returnValue), nil
	}

	var abort *AbortJob
	var goToEnd *GoToEnd
	var goToStep *GoToStep
	var skipN *SkipNSteps

	switch {
	case errors.As(stepErr, &abort):
		job.MarkAborted()
		job.ExceptionTraceback = abort.Error()
		return job, nil
	case errors.As(stepErr, &goToEnd):
		return wf.advance(job, step, GoToEndPath{}, goToEnd.ReturnValue), nil
	case errors.As(stepErr, &goToStep):
		target, ok := wf.StepByName(goToStep.Step)
		if !ok {
			wrapped := &InvalidDefinitionError{Workflow: wf.name, Reason: fmt.Sprintf("GoToStep to unknown step %q", goToStep.Step)}
			job.MarkFailed(wrapped.Error())
			return job, wrapped
		}
		if target.index <= step.index {
			revErr := &ReverseGoToError{Workflow: wf.name, From: step.name, To: goToStep.Step}
			job.MarkFailed(revErr.Error())
			return job, revErr
		}
		return wf.advance(job, step, GoToStepPath{Step: goToStep.Step}, goToStep.ReturnValue), nil
	case errors.As(stepErr, &skipN):
		return wf.advance(job, step, SkipNStepsPath{N: skipN.N}, skipN.ReturnValue), nil
	default:
		job.MarkFailed(stepErr.Error())
		return job, stepErr
	}
}

// advance applies path to job after step returned via that path,
// computing the landing step index, the next step name (or "" if the
// workflow ends), and the remaining-steps denominator for percent
// accounting per the longest matching continuation from path
// enumeration.
func (wf *Workflow) advance(job Job, step *WorkflowStep, path WorkflowPath, returnValue any) Job {
	toIndex, n := wf.resolveAdvance(step, path)
	nextName := ""
	if toIndex >= 0 && toIndex < len(wf.steps) {
		nextName = wf.steps[toIndex].name
	}
	before := job.StepsCompleted
	newCompleted := before + n
	denom := before + remainingForPath(wf, step, path)
	if denom < newCompleted {
		denom = newCompleted
	}
	job.MarkNStepsCompleted(n, returnValue, denom, nextName)
	return job
}

// resolveAdvance returns the landing index (-1 for workflow end) and how
// many steps the job advances by for a given path taken from step.
func (wf *Workflow) resolveAdvance(step *WorkflowStep, path WorkflowPath) (toIndex, n int) {
	switch p := path.(type) {
	case NextStepPath:
		to := step.index + 1
		if to >= len(wf.steps) {
			return -1, 1
		}
		return to, 1
	case GoToEndPath:
		return -1, len(wf.steps) - step.index
	case SkipNStepsPath:
		to := step.index + 1 + p.N
		if to >= len(wf.steps) {
			return -1, len(wf.steps) - step.index
		}
		return to, p.N + 1
	case GoToStepPath:
		target, _ := wf.StepByName(p.Step)
		return target.index, target.index - step.index
	default:
		return -1, 1
	}
}
