package ergate

import (
	"fmt"
	"reflect"
)

// WorkflowStep is one named, registered step of a Workflow: the callable
// to invoke, its classified parameters, and the paths describing where
// execution goes next.
type WorkflowStep struct {
	name  string
	index int
	fn    reflect.Value
	specs []paramSpec
	paths []WorkflowPath
}

// Name returns the step's registered name.
func (s *WorkflowStep) Name() string { return s.name }

// Index returns the step's zero-based position in its workflow.
func (s *WorkflowStep) Index() int { return s.index }

func (s *WorkflowStep) String() string { return fmt.Sprintf("step %q (#%d)", s.name, s.index) }

// Workflow is an ordered list of named steps plus the dependency
// providers shared across them. Workflows are built once at program
// startup via Step and then frozen by Finalize; the engine never
// mutates a workflow's step list after that point.
type Workflow struct {
	name             string
	steps            []*WorkflowStep
	byName           map[string]int
	dependsProviders map[reflect.Type]Provider
	contextTypes     map[reflect.Type]bool
	paths            [][]originChain
	finalized        bool
}

// NewWorkflow creates an empty, named workflow ready to accept Step
// registrations.
func NewWorkflow(name string) *Workflow {
	return &Workflow{
		name:             name,
		byName:           make(map[string]int),
		dependsProviders: make(map[reflect.Type]Provider),
		contextTypes:     make(map[reflect.Type]bool),
	}
}

// Name returns the workflow's registered name.
func (w *Workflow) Name() string { return w.name }

func (w *Workflow) String() string { return fmt.Sprintf("workflow %q (%d steps)", w.name, len(w.steps)) }

// Steps returns the workflow's steps in registration order. The returned
// slice must not be mutated.
func (w *Workflow) Steps() []*WorkflowStep { return w.steps }

// StepByName looks up a step by name, returning (step, true) if found.
func (w *Workflow) StepByName(name string) (*WorkflowStep, bool) {
	i, ok := w.byName[name]
	if !ok {
		return nil, false
	}
	return w.steps[i], true
}

// Step registers fn as the next step of the workflow under name. fn must
// be a function; its parameters are classified immediately (context,
// depends, or at most one input parameter) against providers already
// registered via UseDepends. paths declares where execution continues
// after fn returns normally; if omitted, a NextStepPath is assumed for a
// step that returns a value, and a void step ends the workflow.
//
// Step panics on a non-function fn, a duplicate name or parameters that
// can't be classified — all programmer errors caught at process
// startup, not job-time failures.
func (w *Workflow) Step(name string, fn any, paths ...WorkflowPath) *WorkflowStep {
	if w.finalized {
		panic(fmt.Sprintf("workflow %q: Step called after Finalize", w.name))
	}
	if _, dup := w.byName[name]; dup {
		panic((&InvalidDefinitionError{Workflow: w.name, Reason: fmt.Sprintf("duplicate step name %q", name)}).Error())
	}
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		panic(fmt.Sprintf("workflow %q: step %q: fn must be a function, got %T", w.name, name, fn))
	}
	specs, err := classifyParams(fv.Type(), w.dependsProviders, w.contextTypes)
	if err != nil {
		panic((&InvalidDefinitionError{Workflow: w.name, Reason: fmt.Sprintf("step %q: %s", name, err)}).Error())
	}
	// A void step (no return value, or error only) with no declared
	// paths terminates the workflow there; only a non-void step gets an
	// implicit NextStepPath, since its return value has somewhere to go.
	if len(paths) == 0 && !isVoidReturn(fv.Type()) {
		paths = []WorkflowPath{NextStepPath{}}
	}
	step := &WorkflowStep{
		name:  name,
		index: len(w.steps),
		fn:    fv,
		specs: specs,
		paths: paths,
	}
	w.steps = append(w.steps, step)
	w.byName[name] = step.index
	return step
}

// isVoidReturn reports whether fnType's return signature carries no
// value a following step could consume: no return values at all, or a
// single error return.
func isVoidReturn(fnType reflect.Type) bool {
	switch fnType.NumOut() {
	case 0:
		return true
	case 1:
		return fnType.Out(0) == errType
	default:
		return false
	}
}

// Finalize resolves every declared path (including forward-only
// GoToStepPath name lookups) and caches the resulting branch chains used
// for remaining-step accounting. It must be called once, after every
// Step registration, before the workflow is handed to a WorkflowRegistry;
// WorkflowRegistry.Register calls it automatically.
func (w *Workflow) Finalize() error {
	if w.finalized {
		return nil
	}
	chains, err := enumeratePaths(w)
	if err != nil {
		return err
	}
	w.paths = chains
	w.finalized = true
	return nil
}
