package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/internal/store"
)

// startCall records one Start invocation seen by a probe.
type startCall struct {
	Port   string
	Step   int64
	Inputs map[string]any
}

// probe is a scriptable component. Without an onStart it completes on its
// first result port.
type probe struct {
	*component.Base

	onStart  func(p *probe, env component.Env, port string) (component.Outcome, error)
	onUpdate func(p *probe, env component.Env) (component.Outcome, error)

	starts   []startCall
	updates  int
	stops    int
	aborts   int
	suspends int
	resumes  int
	disposed bool
}

func newProbe(desc component.Descriptor) *probe {
	return &probe{Base: component.NewBase(desc)}
}

func (p *probe) Start(_ context.Context, env component.Env, port string) (component.Outcome, error) {
	p.starts = append(p.starts, startCall{Port: port, Step: env.Step, Inputs: p.Inputs()})
	if p.onStart != nil {
		return p.onStart(p, env, port)
	}
	if len(p.Descriptor().Results) == 0 {
		return component.Completed(""), nil
	}
	return component.Completed(p.Descriptor().Results[0]), nil
}

func (p *probe) Update(_ context.Context, env component.Env) (component.Outcome, error) {
	p.updates++
	if p.onUpdate != nil {
		return p.onUpdate(p, env)
	}
	return component.Pending(0), nil
}

func (p *probe) Stop(context.Context, component.Env) error    { p.stops++; return nil }
func (p *probe) Abort(context.Context, component.Env) error   { p.aborts++; return nil }
func (p *probe) Suspend(context.Context, component.Env) error { p.suspends++; return nil }
func (p *probe) Resume(context.Context, component.Env) error  { p.resumes++; return nil }
func (p *probe) Dispose()                                     { p.disposed = true }

func (p *probe) ports() []string {
	out := make([]string, len(p.starts))
	for i, s := range p.starts {
		out[i] = s.Port
	}
	return out
}

// pendingForever keeps every execution running until stopped.
func pendingForever(*probe, component.Env, string) (component.Outcome, error) {
	return component.Pending(0), nil
}

// workerDesc describes a plain worker: typed inputs, one Any output named
// "Out" and a single result "Done".
func workerDesc(kind string, inputs ...component.Port) component.Descriptor {
	return component.Descriptor{
		Kind:    kind,
		Inputs:  inputs,
		Outputs: []component.Port{{Name: "Out", Type: convert.Any}},
		Results: []string{"Done"},
	}
}

func port(name string, t convert.Type) component.Port {
	return component.Port{Name: name, Type: t}
}

// constant is an operator publishing a fixed value on "Value".
type constant struct {
	*component.Base
	value any
	evals int
}

func newConstant(t convert.Type, v any) *constant {
	return &constant{
		Base: component.NewBase(component.Descriptor{
			Kind:       "const",
			IsOperator: true,
			Outputs:    []component.Port{{Name: "Value", Type: t}},
		}),
		value: v,
	}
}

func (c *constant) Start(context.Context, component.Env, string) (component.Outcome, error) {
	c.evals++
	c.Publish("Value", c.value)
	return component.Completed(""), nil
}

func addProbe(t *testing.T, task *Task, id string, desc component.Descriptor) *probe {
	t.Helper()
	p := newProbe(desc)
	_, err := task.AddNode(NodeID(id), p)
	require.NoError(t, err)
	return p
}

func node(t *testing.T, task *Task, id string) *CallNode {
	t.Helper()
	n, ok := task.Node(NodeID(id))
	require.True(t, ok, "node %s", id)
	return n
}

// mockAppender records appended events for assertions.
type mockAppender struct {
	mu     sync.Mutex
	events []*store.Event
}

func (m *mockAppender) AppendEvent(_ context.Context, event *store.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockAppender) Events() []*store.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*store.Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func (m *mockAppender) Types() []string {
	var out []string
	for _, e := range m.Events() {
		out = append(out, e.Type)
	}
	return out
}

// failAppender always returns an error.
type failAppender struct{}

func (f *failAppender) AppendEvent(_ context.Context, _ *store.Event) error {
	return errors.New("store unavailable")
}
