package ergate

import (
	"fmt"
	"reflect"
)

// WorkflowPath declares where execution goes after a step returns
// normally (without raising one of the control-flow signals). A step can
// declare more than one path when its return type selects among them at
// runtime (not modeled here); the common case is exactly one path per
// step.
type WorkflowPath interface {
	isWorkflowPath()
}

// NextStepPath moves execution to the step immediately following the
// declaring step in registration order. It is the default path appended
// automatically to any step that returns a value and declares none.
type NextStepPath struct{}

func (NextStepPath) isWorkflowPath() {}

// GoToEndPath ends the workflow (StatusCompleted) as soon as the
// declaring step returns.
type GoToEndPath struct{}

func (GoToEndPath) isWorkflowPath() {}

// GoToStepPath moves execution directly to a named step. The target must
// be registered later in the workflow than the step declaring this path
// (forward-only), checked once every step has been registered.
type GoToStepPath struct {
	Step string
}

func (GoToStepPath) isWorkflowPath() {}

// SkipNStepsPath advances past the next n steps (n >= 1), resuming at the
// step n+1 positions ahead of the declaring step.
type SkipNStepsPath struct {
	N int
}

func (SkipNStepsPath) isWorkflowPath() {}

// branch is one fully-resolved hop in a path: the index of the step it
// lands on, or -1 if it lands past the end of the workflow (completion).
type branch struct {
	fromIndex int
	toIndex   int // -1 means workflow end
}

// originChain is the longest sequence of branches reachable by
// repeatedly following declared paths, starting from one specific path
// declared on a step (its origin). A step declaring more than one
// WorkflowPath variant gets one originChain per variant, so the worker
// can later pick the chain matching the variant actually taken instead
// of collapsing every variant into a single global longest chain.
type originChain struct {
	origin WorkflowPath
	hops   []branch
}

// enumeratePaths walks every declared path from every step via DFS,
// resolving GoToStepPath step names to indices and rejecting any jump
// that lands at or before its origin. It returns, for each step index,
// one originChain per path variant declared on that step — each holding
// the longest chain of branches reachable by repeatedly following
// declared downstream paths with no step executing its body. Used to
// compute remaining-step counts when a step's outcome jumps ahead via
// GoToStep/SkipNSteps/GoToEnd.
func enumeratePaths(wf *Workflow) ([][]originChain, error) {
	n := len(wf.steps)
	byName := make(map[string]int, n)
	for i, s := range wf.steps {
		byName[s.name] = i
	}

	resolve := func(fromIndex int, p WorkflowPath) (branch, error) {
		switch path := p.(type) {
		case NextStepPath:
			to := fromIndex + 1
			if to >= n {
				return branch{fromIndex, -1}, nil
			}
			return branch{fromIndex, to}, nil
		case GoToEndPath:
			return branch{fromIndex, -1}, nil
		case SkipNStepsPath:
			to := fromIndex + 1 + path.N
			if to <= fromIndex {
				return branch{}, &ReverseGoToError{Workflow: wf.name, From: wf.steps[fromIndex].name, To: fmt.Sprintf("+%d steps", path.N)}
			}
			if to >= n {
				return branch{fromIndex, -1}, nil
			}
			return branch{fromIndex, to}, nil
		case GoToStepPath:
			to, ok := byName[path.Step]
			if !ok {
				return branch{}, &InvalidDefinitionError{Workflow: wf.name, Reason: fmt.Sprintf("step %q has GoToStepPath to unknown step %q", wf.steps[fromIndex].name, path.Step)}
			}
			if to <= fromIndex {
				return branch{}, &ReverseGoToError{Workflow: wf.name, From: wf.steps[fromIndex].name, To: path.Step}
			}
			return branch{fromIndex, to}, nil
		default:
			return branch{}, &InvalidDefinitionError{Workflow: wf.name, Reason: fmt.Sprintf("unrecognized path type %T", p)}
		}
	}

	maxDepth := 5 * n
	if maxDepth < 100 {
		maxDepth = 100
	}

	all := make([][]originChain, n)
	for i, s := range wf.steps {
		if len(s.paths) == 0 {
			continue
		}
		chains := make([]originChain, 0, len(s.paths))
		for _, origin := range s.paths {
			b, err := resolve(i, origin)
			if err != nil {
				return nil, err
			}

			var longest []branch
			var walk func(index int, acc []branch, depth int) error
			walk = func(index int, acc []branch, depth int) error {
				if depth > maxDepth {
					return &InvalidDefinitionError{Workflow: wf.name, Reason: fmt.Sprintf("path enumeration from step %q exceeded depth %d, likely a declaration cycle", s.name, maxDepth)}
				}
				if index == -1 || index >= n {
					if len(acc) > len(longest) {
						longest = append([]branch{}, acc...)
					}
					return nil
				}
				step := wf.steps[index]
				if len(step.paths) == 0 {
					if len(acc) > len(longest) {
						longest = append([]branch{}, acc...)
					}
					return nil
				}
				for _, p := range step.paths {
					nb, err := resolve(index, p)
					if err != nil {
						return err
					}
					if err := walk(nb.toIndex, append(acc, nb), depth+1); err != nil {
						return err
					}
				}
				return nil
			}
			if err := walk(b.toIndex, []branch{b}, 1); err != nil {
				return nil, err
			}
			chains = append(chains, originChain{origin: origin, hops: longest})
		}
		all[i] = chains
	}
	return all, nil
}

// pathMatches reports whether taken is the same path variant as origin:
// equal concrete type, and for the variants whose destination depends on
// a field (GoToStepPath's target name, SkipNStepsPath's count), equal
// field value too.
func pathMatches(origin, taken WorkflowPath) bool {
	switch o := origin.(type) {
	case GoToStepPath:
		t, ok := taken.(GoToStepPath)
		return ok && t.Step == o.Step
	case SkipNStepsPath:
		t, ok := taken.(SkipNStepsPath)
		return ok && t.N == o.N
	default:
		return reflect.TypeOf(origin) == reflect.TypeOf(taken)
	}
}

// remainingForPath returns the remaining-step count to use as
// Job.PercentCompleted's denominator when step's outcome follows taken:
// the length of the longest precomputed chain whose origin matches
// taken, counting the landing step itself. Falls back to the distance
// from step to the end of the workflow when no declared path variant on
// step matches taken — the case of a dynamic control-flow signal
// (GoToStep/SkipNSteps raised as an error) that has no corresponding
// statically declared path to measure against.
func remainingForPath(wf *Workflow, step *WorkflowStep, taken WorkflowPath) int {
	for _, chain := range wf.paths[step.index] {
		if pathMatches(chain.origin, taken) {
			return len(chain.hops)
		}
	}
	return len(wf.steps) - step.index
}
