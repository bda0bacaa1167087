package ergate

import "sync"

// WorkflowRegistry is a write-once, concurrent-read map from workflow
// name to Workflow. Workers and publishers share a single registry
// populated during process startup; no registration happens after a
// worker or publisher loop begins.
type WorkflowRegistry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewWorkflowRegistry creates an empty registry.
func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{workflows: make(map[string]*Workflow)}
}

// Register finalizes wf and adds it to the registry. It returns
// InvalidDefinitionError if a workflow with the same name is already
// registered, or whatever error Workflow.Finalize produced.
func (r *WorkflowRegistry) Register(wf *Workflow) error {
	if err := wf.Finalize(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.workflows[wf.name]; dup {
		return &InvalidDefinitionError{Workflow: wf.name, Reason: "workflow already registered"}
	}
	r.workflows[wf.name] = wf
	return nil
}

// Get looks up a workflow by name.
func (r *WorkflowRegistry) Get(name string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[name]
	if !ok {
		return nil, &UnknownWorkflowError{Workflow: name}
	}
	return wf, nil
}

// Names returns every registered workflow name.
func (r *WorkflowRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for n := range r.workflows {
		names = append(names, n)
	}
	return names
}
