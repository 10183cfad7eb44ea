package engine

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// stepRun is the mutable execution state of one step within one run.
// It is guarded by the owning runState's mutex.
type stepRun struct {
	def         api.StepDefinition
	status      api.StepStatus
	output      any
	err         error
	waiting     int // parents not yet succeeded
	transitions map[api.StepStatus]time.Time
}

func (s *stepRun) transition(to api.StepStatus, at time.Time) {
	s.status = to
	s.transitions[to] = at
}

// runState is the engine's record of a single run.
type runState struct {
	id       string
	parentID string
	wf       *compiledWorkflow
	payload  any

	mu         sync.Mutex
	status     api.RunStatus
	steps      map[string]*stepRun
	remaining  int // steps not yet succeeded
	result     map[string]any
	err        error
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time

	// done is closed once the run is terminal.
	done chan struct{}
}

func newRunState(id, parentID string, wf *compiledWorkflow, payload any, now time.Time) *runState {
	r := &runState{
		id:        id,
		parentID:  parentID,
		wf:        wf,
		payload:   payload,
		status:    api.RunPending,
		steps:     make(map[string]*stepRun, len(wf.order)),
		remaining: len(wf.order),
		createdAt: now,
		done:      make(chan struct{}),
	}
	for _, name := range wf.order {
		def := wf.steps[name]
		sr := &stepRun{
			def:         def,
			waiting:     len(def.Parents),
			transitions: make(map[api.StepStatus]time.Time, 4),
		}
		sr.transition(api.StepBlocked, now)
		r.steps[name] = sr
	}
	return r
}

func (r *runState) ref() api.RunRef {
	return api.RunRef{ID: r.id, Workflow: r.wf.def.Name, ParentRunID: r.parentID}
}

// parentOutputs collects the outputs of a step's parents. Caller holds r.mu.
func (r *runState) parentOutputs(sr *stepRun) map[string]any {
	out := make(map[string]any, len(sr.def.Parents))
	for _, p := range sr.def.Parents {
		out[p] = r.steps[p].output
	}
	return out
}

// aggregate builds the run result from step outputs. Caller holds r.mu.
func (r *runState) aggregate() map[string]any {
	out := make(map[string]any, len(r.steps))
	for name, sr := range r.steps {
		out[name] = sr.output
	}
	return out
}

func (r *runState) terminal() bool {
	return r.status.Terminal()
}

// snapshot copies the run. It takes r.mu.
func (r *runState) snapshot() *api.RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := &api.RunSnapshot{
		ID:          r.id,
		Workflow:    r.wf.def.Name,
		ParentRunID: r.parentID,
		Status:      r.status,
		Payload:     r.payload,
		Err:         r.err,
		CreatedAt:   r.createdAt,
		FinishedAt:  r.finishedAt,
		Steps:       make([]api.StepSnapshot, 0, len(r.steps)),
	}
	if r.result != nil {
		snap.Result = maps.Clone(r.result)
	}
	for _, name := range r.wf.order {
		sr := r.steps[name]
		snap.Steps = append(snap.Steps, api.StepSnapshot{
			Name:        name,
			Parents:     slices.Clone(sr.def.Parents),
			Status:      sr.status,
			Output:      sr.output,
			Err:         sr.err,
			Transitions: maps.Clone(sr.transitions),
		})
	}
	return snap
}

func (r *runState) matches(opts api.RunListOptions) bool {
	if opts.WorkflowName != "" && r.wf.def.Name != opts.WorkflowName {
		return false
	}
	if opts.ParentRunID != "" && r.parentID != opts.ParentRunID {
		return false
	}
	if opts.Status != "" {
		r.mu.Lock()
		st := r.status
		r.mu.Unlock()
		if st != opts.Status {
			return false
		}
	}
	return true
}
