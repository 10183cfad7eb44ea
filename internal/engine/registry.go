package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// compiledWorkflow is a validated definition plus the graph indexes the
// scheduler needs.
type compiledWorkflow struct {
	def api.WorkflowDefinition

	// order is a topological order of step names.
	order      []string
	steps      map[string]api.StepDefinition
	dependents map[string][]string
	roots      []string
}

type workflowRegistry struct {
	mu        sync.RWMutex
	byName    map[string]*compiledWorkflow
	byTrigger map[string][]string
}

func newWorkflowRegistry() *workflowRegistry {
	return &workflowRegistry{
		byName:    make(map[string]*compiledWorkflow),
		byTrigger: make(map[string][]string),
	}
}

func (r *workflowRegistry) Register(def api.WorkflowDefinition) error {
	cw, err := compileWorkflow(def)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("%w: %s", api.ErrDuplicateWorkflow, def.Name)
	}

	r.byName[def.Name] = cw
	for _, ev := range cw.def.Triggers {
		if !slices.Contains(r.byTrigger[ev], def.Name) {
			r.byTrigger[ev] = append(r.byTrigger[ev], def.Name)
		}
	}
	return nil
}

func (r *workflowRegistry) Get(name string) (*compiledWorkflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cw, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownWorkflow, name)
	}
	return cw, nil
}

// Triggered returns the names of workflows listening for event, in
// registration order.
func (r *workflowRegistry) Triggered(event string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.byTrigger[event])
}

// Names returns every registered workflow name.
func (r *workflowRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func compileWorkflow(def api.WorkflowDefinition) (*compiledWorkflow, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: workflow name is required", api.ErrInvalidWorkflow)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("%w: workflow %q must have at least one step", api.ErrInvalidWorkflow, def.Name)
	}

	// Copy so later mutation of the caller's slices cannot reach the
	// registered definition.
	steps := make([]api.StepDefinition, len(def.Steps))
	for i, s := range def.Steps {
		s.Parents = slices.Clone(s.Parents)
		steps[i] = s
	}
	def.Steps = steps
	def.Triggers = slices.Clone(def.Triggers)

	cw := &compiledWorkflow{
		def:        def,
		steps:      make(map[string]api.StepDefinition, len(steps)),
		dependents: make(map[string][]string, len(steps)),
	}

	for _, s := range steps {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: workflow %q has a step without a name", api.ErrInvalidWorkflow, def.Name)
		}
		if s.Fn == nil {
			return nil, fmt.Errorf("%w: step %q has no function", api.ErrInvalidWorkflow, s.Name)
		}
		if _, dup := cw.steps[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate step %q", api.ErrInvalidWorkflow, s.Name)
		}
		cw.steps[s.Name] = s
	}

	indegree := make(map[string]int, len(steps))
	for _, s := range steps {
		seen := make(map[string]bool, len(s.Parents))
		for _, p := range s.Parents {
			switch {
			case p == s.Name:
				return nil, fmt.Errorf("%w: step %q depends on itself", api.ErrCyclicWorkflow, s.Name)
			case seen[p]:
				return nil, fmt.Errorf("%w: step %q lists parent %q twice", api.ErrInvalidWorkflow, s.Name, p)
			}
			if _, ok := cw.steps[p]; !ok {
				return nil, fmt.Errorf("%w: step %q has unknown parent %q", api.ErrInvalidWorkflow, s.Name, p)
			}
			seen[p] = true
			cw.dependents[p] = append(cw.dependents[p], s.Name)
		}
		indegree[s.Name] = len(s.Parents)
		if len(s.Parents) == 0 {
			cw.roots = append(cw.roots, s.Name)
		}
	}

	// Kahn's algorithm; anything left unvisited sits on a cycle.
	queue := slices.Clone(cw.roots)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		cw.order = append(cw.order, name)
		for _, d := range cw.dependents[name] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if len(cw.order) != len(steps) {
		var stuck []string
		for _, s := range steps {
			if indegree[s.Name] > 0 {
				stuck = append(stuck, s.Name)
			}
		}
		return nil, fmt.Errorf("%w: %s (steps %v)", api.ErrCyclicWorkflow, def.Name, stuck)
	}

	return cw, nil
}
