package scrapeflow

import (
	"fmt"
	"slices"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// FlowBuilder provides a fluent API for defining workflows:
//
//	flow := scrapeflow.New("Report").
//	    On("report:nightly").
//	    Step("fetch", fetch).
//	    Step("summarize", summarize, "fetch").
//	    Step("chart", chart, "fetch").
//	    Step("publish", publish, "summarize", "chart")
//
//	if err := flow.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
//
// Graph validation (unknown parents, cycles) happens at registration.
type FlowBuilder struct {
	def api.WorkflowDefinition
}

// New creates a new workflow builder with the given name.
func New(name string) *FlowBuilder {
	return &FlowBuilder{
		def: api.WorkflowDefinition{
			Name:  name,
			Steps: make([]api.StepDefinition, 0),
		},
	}
}

// Name returns the workflow name.
func (b *FlowBuilder) Name() string {
	return b.def.Name
}

// Definition returns a copy of the underlying WorkflowDefinition.
// Typically used when interacting with lower-level APIs.
func (b *FlowBuilder) Definition() WorkflowDefinition {
	def := b.def
	def.Triggers = slices.Clone(b.def.Triggers)
	def.Steps = make([]api.StepDefinition, len(b.def.Steps))
	for i, s := range b.def.Steps {
		s.Parents = slices.Clone(s.Parents)
		def.Steps[i] = s
	}
	return def
}

// On adds trigger events that start the workflow via Engine.Emit.
func (b *FlowBuilder) On(events ...string) *FlowBuilder {
	for _, ev := range events {
		if ev == "" {
			panic("scrapeflow: trigger event must not be empty")
		}
		if !slices.Contains(b.def.Triggers, ev) {
			b.def.Triggers = append(b.def.Triggers, ev)
		}
	}
	return b
}

// Step appends a step that runs once all of parents have succeeded.
// A step with no parents starts when the run starts.
func (b *FlowBuilder) Step(name string, fn StepFunc, parents ...string) *FlowBuilder {
	if name == "" {
		panic("scrapeflow: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("scrapeflow: step %q has nil function", name))
	}

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name:    name,
		Parents: slices.Clone(parents),
		Fn:      fn,
	})
	return b
}

// Registrar is anything workflows can be registered with.
type Registrar interface {
	RegisterWorkflow(def api.WorkflowDefinition) error
}

// Register registers the built workflow with the given engine.
func (b *FlowBuilder) Register(eng Registrar) error {
	return eng.RegisterWorkflow(b.Definition())
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustRegister(eng Registrar) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
