package ergate

import "fmt"

// InvalidDefinitionError describes a structurally invalid set of steps or
// paths. Finalize and WorkflowRegistry.Register return it for a
// GoToStepPath targeting an unknown step; Workflow.Step panics with its
// message for a duplicate step name or a step function whose parameters
// can't be classified by the dependency resolver.
type InvalidDefinitionError struct {
	Workflow string
	Reason   string
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("invalid workflow definition %q: %s", e.Workflow, e.Reason)
}

// UnknownStepError is returned when a job references a step name that does
// not exist on its workflow.
type UnknownStepError struct {
	Workflow string
	Step     string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("workflow %q has no step %q", e.Workflow, e.Step)
}

// UnknownWorkflowError is returned when a job references a workflow name
// absent from the registry handling it.
type UnknownWorkflowError struct {
	Workflow string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("no workflow registered under name %q", e.Workflow)
}

// ReverseGoToError is returned when a GoToStepPath or SkipNStepsPath would
// move execution to a step at or before the step declaring it, or when a
// step raises GoToStep towards such a step. Workflows are forward-only
// directed graphs; declared paths are checked by Finalize, and a raised
// GoToStep when Dispatch handles it.
type ReverseGoToError struct {
	Workflow string
	From     string
	To       string
}

func (e *ReverseGoToError) Error() string {
	return fmt.Sprintf("workflow %q: step %q may not jump backward to %q", e.Workflow, e.From, e.To)
}

// ValidationError wraps a configuration or input validation failure.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AbortJob is raised by a step to terminate the job immediately with
// ABORTED status, regardless of any declared path.
type AbortJob struct {
	Reason string
}

func (e *AbortJob) Error() string {
	if e.Reason == "" {
		return "job aborted"
	}
	return fmt.Sprintf("job aborted: %s", e.Reason)
}

// GoToEnd is raised by a step to terminate the job immediately with
// COMPLETED status, skipping any remaining declared steps.
type GoToEnd struct {
	ReturnValue any
}

func (e *GoToEnd) Error() string { return "job directed to end" }

// GoToStep is raised by a step to redirect execution to a named step
// instead of following any declared path. The target must be reachable
// by a forward jump from the raising step.
type GoToStep struct {
	Step        string
	ReturnValue any
}

func (e *GoToStep) Error() string { return fmt.Sprintf("job directed to step %q", e.Step) }

// SkipNSteps is raised by a step to advance past the next n steps,
// resuming execution at the step n+1 positions ahead of the current one.
type SkipNSteps struct {
	N           int
	ReturnValue any
}

func (e *SkipNSteps) Error() string { return fmt.Sprintf("job directed to skip %d steps", e.N) }
