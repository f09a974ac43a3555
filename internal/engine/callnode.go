package engine

import (
	"context"
	"slices"
	"time"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/pkg/schema"
)

// CallNode wraps one component inside a task graph and runs its lifecycle.
// All methods must be called from the task's serialized path.
type CallNode struct {
	id   NodeID
	task *Task
	comp component.Component
	desc component.Descriptor

	state       schema.NodeState
	breakInput  bool
	breakOutput bool
	suspended   bool

	initialValues map[string]any
	defaultValues map[string]any
	pending       []string
	lastStartStep int64
	running       int
	handles       map[component.Handle]struct{}

	// Break bookkeeping: the port held at BreakStart, the result held at
	// BreakEnd and whether that result finished the execution.
	breakPort   string
	breakResult string
	breakDone   bool

	evaluating bool
}

func newCallNode(t *Task, id NodeID, c component.Component) *CallNode {
	n := &CallNode{
		id:            id,
		task:          t,
		comp:          c,
		desc:          c.Descriptor(),
		state:         schema.NodeStateUndefined,
		initialValues: make(map[string]any),
		defaultValues: make(map[string]any),
		lastStartStep: -1,
		handles:       make(map[component.Handle]struct{}),
	}
	for _, p := range n.desc.Inputs {
		n.defaultValues[p.Name] = c.Value(p.Name)
	}
	return n
}

func (n *CallNode) ID() NodeID                       { return n.id }
func (n *CallNode) Component() component.Component   { return n.comp }
func (n *CallNode) Descriptor() component.Descriptor { return n.desc }
func (n *CallNode) State() schema.NodeState          { return n.state }
func (n *CallNode) Running() int                     { return n.running }
func (n *CallNode) LastStartStep() int64             { return n.lastStartStep }
func (n *CallNode) IsOperator() bool                 { return n.desc.IsOperator }
func (n *CallNode) IsBreakInput() bool               { return n.breakInput }
func (n *CallNode) IsBreakOutput() bool              { return n.breakOutput }
func (n *CallNode) SetBreakInput(v bool)             { n.breakInput = v }
func (n *CallNode) SetBreakOutput(v bool)            { n.breakOutput = v }

// PendingStartPorts returns the queued start ports in replay order.
func (n *CallNode) PendingStartPorts() []string {
	return slices.Clone(n.pending)
}

// InitialValues returns the input snapshot taken before the last fresh execution.
func (n *CallNode) InitialValues() map[string]any {
	out := make(map[string]any, len(n.initialValues))
	for k, v := range n.initialValues {
		out[k] = v
	}
	return out
}

// Start triggers the node on port at the given simulation step. Operators
// are evaluated in place. Triggers that arrive while the node already ran
// this step, is at its start limit or is held by a breakpoint are queued
// and replayed later by StartPending.
func (n *CallNode) Start(ctx context.Context, port string, step int64) error {
	if n.desc.IsOperator {
		n.evaluate(ctx, step)
		return nil
	}
	if port == "" {
		port = component.DefaultStartPort
	}
	if !n.desc.HasStartPort(port) {
		return schema.NewErrorf(schema.ErrCodePortNotFound, "node %s has no start port %q", n.id, port).
			WithNode(string(n.id))
	}
	n.start(ctx, port, step, false)
	return nil
}

func (n *CallNode) start(ctx context.Context, port string, step int64, resumed bool) {
	switch {
	case n.state.IsBreak() || n.state == schema.NodeStateFreezeByBreak:
		n.enqueue(port)
	case n.breakInput && !resumed:
		n.breakPort = port
		n.setState(ctx, step, schema.NodeStateBreakStart)
	case n.task.Halted():
		n.enqueue(port)
		n.setState(ctx, step, schema.NodeStateFreezeByBreak)
	case n.running > 0 && n.desc.IsControlPort(port):
		n.deliver(ctx, port, step)
	case n.busy(step):
		n.enqueue(port)
		if n.state == schema.NodeStateUndefined || n.state == schema.NodeStateStarted {
			n.setState(ctx, step, schema.NodeStateWaitingForStart)
		}
	default:
		n.run(ctx, port, step)
	}
}

func (n *CallNode) busy(step int64) bool {
	return n.lastStartStep == step ||
		n.state == schema.NodeStateWaitingForStart ||
		n.running >= n.desc.StartLimit()
}

func (n *CallNode) enqueue(port string) {
	if !slices.Contains(n.pending, port) {
		n.pending = append(n.pending, port)
	}
}

// run performs a fresh execution.
func (n *CallNode) run(ctx context.Context, port string, step int64) {
	n.captureInitial()
	n.running++
	n.lastStartStep = step
	n.setState(ctx, step, schema.NodeStateStarted)
	n.pullParameters(ctx, step)

	out, err := n.comp.Start(n.scoped(ctx, step), n.env(step, 0), port)
	if err != nil {
		n.fail(ctx, step, err)
		return
	}
	n.handle(ctx, step, out)
}

// deliver hands a control port trigger to the running component.
func (n *CallNode) deliver(ctx context.Context, port string, step int64) {
	out, err := n.comp.Start(n.scoped(ctx, step), n.env(step, 0), port)
	if err != nil {
		n.fail(ctx, step, err)
		return
	}
	n.handle(ctx, step, out)
}

func (n *CallNode) handle(ctx context.Context, step int64, out component.Outcome) {
	switch out.Kind {
	case component.OutcomeCompleted:
		n.release()
		n.returned(ctx, step, out.Result, true)
	case component.OutcomeYielded:
		n.returned(ctx, step, out.Result, false)
	default:
		if out.Handle != 0 {
			n.handles[out.Handle] = struct{}{}
			n.task.handles[out.Handle] = n.id
		}
		n.settleState(ctx, step)
	}
}

func (n *CallNode) release() {
	if n.running > 0 {
		n.running--
	}
}

// returned fires result. finished reports whether the execution ended.
func (n *CallNode) returned(ctx context.Context, step int64, result string, finished bool) {
	n.task.emitNode(ctx, n.task.hooks.OnReturned, n, step, func(e *NodeEvent) { e.Result = result })

	if n.breakOutput {
		n.breakResult = result
		n.breakDone = finished
		n.setState(ctx, step, schema.NodeStateBreakEnd)
		return
	}
	n.propagate(ctx, step, result)
	n.settle(ctx, step, finished)
}

// propagate starts every node wired to result, in connection order.
func (n *CallNode) propagate(ctx context.Context, step int64, result string) {
	if result == "" {
		return
	}
	for _, call := range n.task.Calls(n.id, result) {
		next, ok := n.task.nodes[call.Target]
		if !ok {
			continue
		}
		// A running target sees the caller's values now; an idle one pulls
		// all of its sources when it starts.
		if next.running > 0 && n.task.linked(n.id, next.id) {
			n.TransferParameters(ctx, next, step)
		}
		if err := next.Start(ctx, call.StartPort, step); err != nil {
			n.task.logger.WarnContext(n.scoped(ctx, step), "execution call dropped",
				"target", string(next.id), "port", call.StartPort, "error", err)
		}
	}
}

// settle cleans inputs after a result fired and moves the node out of Started.
func (n *CallNode) settle(ctx context.Context, step int64, finished bool) {
	switch {
	case n.desc.Updatable:
		n.pullParameters(ctx, step)
	case finished && n.running == 0:
		n.restoreInitial()
	}
	n.settleState(ctx, step)
}

func (n *CallNode) settleState(ctx context.Context, step int64) {
	if n.state == schema.NodeStateStarted && n.running == 0 {
		n.setState(ctx, step, schema.NodeStateUndefined)
	}
	if len(n.pending) > 0 && (n.state == schema.NodeStateUndefined || n.state == schema.NodeStateStarted) {
		n.setState(ctx, step, schema.NodeStateWaitingForStart)
	}
}

// fail ends one execution without firing a result.
func (n *CallNode) fail(ctx context.Context, step int64, err error) {
	n.task.emitNode(ctx, n.task.hooks.OnFailed, n, step, func(e *NodeEvent) { e.Err = err })
	n.task.logger.WarnContext(n.scoped(ctx, step), "component failed", "error", err)
	n.release()
	if n.running == 0 {
		n.restoreInitial()
	}
	n.settleState(ctx, step)
}

// update advances a running component by one tick. An execution started
// during step has not lived through the tick yet and is left alone.
func (n *CallNode) update(ctx context.Context, step int64, delta time.Duration) {
	if n.running == 0 || n.suspended || n.desc.IsOperator || n.state.IsBreak() ||
		n.lastStartStep == step {
		return
	}
	out, err := n.comp.Update(n.scoped(ctx, step), n.env(step, delta))
	if err != nil {
		n.fail(ctx, step, err)
		return
	}
	if out.Kind != component.OutcomePending {
		n.handle(ctx, step, out)
	}
}

func (n *CallNode) resolve(ctx context.Context, h component.Handle, result string, step int64) {
	delete(n.handles, h)
	n.release()
	n.returned(ctx, step, result, true)
}

func (n *CallNode) reject(ctx context.Context, h component.Handle, err error, step int64) {
	delete(n.handles, h)
	n.fail(ctx, step, err)
}

// StartPending replays the oldest queued start port. It does nothing when
// the node already started at step, is still at its start limit or has
// nothing queued.
func (n *CallNode) StartPending(ctx context.Context, step int64) {
	if n.state != schema.NodeStateWaitingForStart || len(n.pending) == 0 ||
		step == n.lastStartStep || n.running >= n.desc.StartLimit() {
		return
	}
	port := n.pending[0]
	n.pending = n.pending[1:]
	n.setState(ctx, step, schema.NodeStateUndefined)
	n.start(ctx, port, step, false)
}

// evaluate recomputes an operator's outputs from freshly pulled inputs.
func (n *CallNode) evaluate(ctx context.Context, step int64) {
	if n.evaluating {
		return
	}
	n.evaluating = true
	defer func() { n.evaluating = false }()

	n.pullParameters(ctx, step)
	if step > n.lastStartStep {
		n.lastStartStep = step
	}
	if _, err := n.comp.Start(n.scoped(ctx, step), n.env(step, 0), ""); err != nil {
		n.task.emitNode(ctx, n.task.hooks.OnFailed, n, step, func(e *NodeEvent) { e.Err = err })
		n.task.logger.WarnContext(n.scoped(ctx, step), "operator failed", "error", err)
	}
}

// Stop delegates to the component and drops every outstanding execution.
func (n *CallNode) Stop(ctx context.Context, step int64) error {
	err := n.comp.Stop(n.scoped(ctx, step), n.env(step, 0))
	n.halt(ctx, step)
	n.task.emitNode(ctx, n.task.hooks.OnStopped, n, step, nil)
	return err
}

// Abort cancels the component. Work already propagated downstream is not undone.
func (n *CallNode) Abort(ctx context.Context, step int64) error {
	err := n.comp.Abort(n.scoped(ctx, step), n.env(step, 0))
	n.halt(ctx, step)
	n.task.emitNode(ctx, n.task.hooks.OnAborted, n, step, nil)
	return err
}

func (n *CallNode) Suspend(ctx context.Context, step int64) error {
	n.suspended = true
	return n.comp.Suspend(n.scoped(ctx, step), n.env(step, 0))
}

func (n *CallNode) Resume(ctx context.Context, step int64) error {
	n.suspended = false
	return n.comp.Resume(n.scoped(ctx, step), n.env(step, 0))
}

func (n *CallNode) halt(ctx context.Context, step int64) {
	n.running = 0
	for h := range n.handles {
		delete(n.task.handles, h)
	}
	clear(n.handles)
	if n.state == schema.NodeStateStarted {
		n.setState(ctx, step, schema.NodeStateUndefined)
	}
	n.settleState(ctx, step)
}

// reset returns the node to a clean Undefined state, dropping queued triggers.
func (n *CallNode) reset(ctx context.Context, step int64) {
	n.pending = nil
	n.breakPort, n.breakResult, n.breakDone = "", "", false
	n.suspended = false
	n.setState(ctx, step, schema.NodeStateUndefined)
}

func (n *CallNode) setState(ctx context.Context, step int64, to schema.NodeState) {
	from := n.state
	if from == to {
		return
	}
	if err := checkNodeTransition(from, to); err != nil {
		n.task.logger.ErrorContext(n.scoped(ctx, step), "node state transition rejected", "error", err)
		return
	}
	n.state = to
	if to.IsBreak() {
		n.task.halts[n.id] = struct{}{}
	} else {
		delete(n.task.halts, n.id)
	}
	n.task.emitNode(ctx, n.task.hooks.OnStateChange, n, step, func(e *NodeEvent) {
		e.From, e.To = from, to
	})
}

func (n *CallNode) env(step int64, delta time.Duration) component.Env {
	return component.Env{
		Step:   step,
		Delta:  delta,
		TaskID: n.task.id,
		Node:   string(n.id),
		Host:   n.task.host,
		Logger: n.task.logger,
	}
}

func (n *CallNode) scoped(ctx context.Context, step int64) context.Context {
	return logging.WithIDs(ctx, n.task.id, string(n.id), step)
}
