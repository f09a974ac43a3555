package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/pkg/schema"
)

// NodeID addresses a call node inside its task.
type NodeID string

// ExecutionCall is the target side of an execution edge.
type ExecutionCall struct {
	StartPort string `json:"start_port"`
	Target    NodeID `json:"target"`
}

// ParameterLink is a parameter edge together with the coercion chosen when
// it was connected.
type ParameterLink struct {
	Source NodeID              `json:"source"`
	Output string              `json:"output"`
	Target NodeID              `json:"target"`
	Input  string              `json:"input"`
	Mode   convert.Assignation `json:"mode"`
}

type callRef struct {
	source NodeID
	result string
}

// Task is a graph of call nodes. Nodes live in an arena keyed by NodeID;
// both edge directions are kept as NodeID-keyed maps.
//
// A Task is not safe for concurrent use. Components report asynchronous
// completions through their Host, which queues them until Drain (or the
// Manager) applies them.
type Task struct {
	id     string
	name   string
	disp   *dispatcher
	host   component.Host
	hooks  Hooks
	logger *slog.Logger

	nodes   map[NodeID]*CallNode
	order   []NodeID
	entries []NodeID

	calls          map[NodeID]map[string][]ExecutionCall
	previousCalls  map[NodeID][]callRef
	params         map[NodeID][]ParameterLink
	previousParams map[NodeID][]ParameterLink

	handles map[component.Handle]NodeID
	halts   map[NodeID]struct{}
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithTaskID sets the task ID. Defaults to a random UUID.
func WithTaskID(id string) TaskOption { return func(t *Task) { t.id = id } }

// WithTaskName sets a display name.
func WithTaskName(name string) TaskOption { return func(t *Task) { t.name = name } }

// WithHooks installs observation hooks.
func WithHooks(h Hooks) TaskOption { return func(t *Task) { t.hooks = h } }

// WithTaskLogger sets the logger. Defaults to a discarding logger.
func WithTaskLogger(l *slog.Logger) TaskOption { return func(t *Task) { t.logger = l } }

// NewTask creates an empty task with its own host: a private signal bus and
// a small worker pool for Host.Go.
func NewTask(opts ...TaskOption) *Task {
	t := &Task{
		logger:         logging.Discard(),
		nodes:          make(map[NodeID]*CallNode),
		calls:          make(map[NodeID]map[string][]ExecutionCall),
		previousCalls:  make(map[NodeID][]callRef),
		params:         make(map[NodeID][]ParameterLink),
		previousParams: make(map[NodeID][]ParameterLink),
		handles:        make(map[component.Handle]NodeID),
		halts:          make(map[NodeID]struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	if t.id == "" {
		t.id = uuid.NewString()
	}
	if t.logger == nil {
		t.logger = logging.Discard()
	}
	t.attach(newDispatcher(context.Background(), NewWorkerPool(4), NewSignalBus()))
	return t
}

func (t *Task) attach(d *dispatcher) {
	t.disp = d
	t.host = d.hostFor(t.id)
}

func (t *Task) ID() string   { return t.id }
func (t *Task) Name() string { return t.name }

// Host returns the host handed to this task's components.
func (t *Task) Host() component.Host { return t.host }

// --- Graph mutation ---

// AddNode inserts a component under id (a UUID when empty). The new node is
// an entry node until an execution edge targets it.
func (t *Task) AddNode(id NodeID, c component.Component) (*CallNode, error) {
	if c == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "component is nil")
	}
	if id == "" {
		id = NodeID(uuid.NewString())
	}
	if _, exists := t.nodes[id]; exists {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "node %q already exists", id).WithNode(string(id))
	}

	n := newCallNode(t, id, c)
	t.nodes[id] = n
	t.order = append(t.order, id)
	t.entries = append(t.entries, id)

	if notifier, ok := c.(component.Notifier); ok {
		notifier.OnPropertyChanged(func(name string) { t.outputChanged(n, name) })
	}
	return n, nil
}

// RemoveNode disconnects a node in both directions, disposes its component
// and drops it from the graph.
func (t *Task) RemoveNode(id NodeID) error {
	n, ok := t.nodes[id]
	if !ok {
		return nodeNotFound(id)
	}

	for result, calls := range t.calls[id] {
		for _, c := range calls {
			t.dropCallRef(c.Target, id, result)
		}
	}
	delete(t.calls, id)
	for _, ref := range slices.Clone(t.previousCalls[id]) {
		if byResult := t.calls[ref.source]; byResult != nil {
			byResult[ref.result] = slices.DeleteFunc(byResult[ref.result],
				func(c ExecutionCall) bool { return c.Target == id })
		}
	}
	delete(t.previousCalls, id)

	for _, link := range slices.Clone(t.params[id]) {
		t.unlinkParameter(link)
	}
	for _, link := range slices.Clone(t.previousParams[id]) {
		t.params[link.Source] = slices.DeleteFunc(t.params[link.Source],
			func(l ParameterLink) bool { return l.Target == id })
	}
	delete(t.params, id)
	delete(t.previousParams, id)

	for h := range n.handles {
		delete(t.handles, h)
	}
	delete(t.halts, id)
	delete(t.nodes, id)
	t.order = slices.DeleteFunc(t.order, func(x NodeID) bool { return x == id })
	t.entries = slices.DeleteFunc(t.entries, func(x NodeID) bool { return x == id })

	if d, ok := n.comp.(component.Disposer); ok {
		d.Dispose()
	}
	return nil
}

// ConnectCall wires result of source to startPort of target. The target
// stops being an entry node.
func (t *Task) ConnectCall(source NodeID, result string, target NodeID, startPort string) error {
	src, ok := t.nodes[source]
	if !ok {
		return nodeNotFound(source)
	}
	dst, ok := t.nodes[target]
	if !ok {
		return nodeNotFound(target)
	}
	if !src.desc.HasResult(result) {
		return schema.NewErrorf(schema.ErrCodePortNotFound, "node %s has no result %q", source, result).
			WithNode(string(source))
	}
	if startPort == "" {
		startPort = component.DefaultStartPort
	}
	if !dst.desc.HasStartPort(startPort) {
		return schema.NewErrorf(schema.ErrCodePortNotFound, "node %s has no start port %q", target, startPort).
			WithNode(string(target))
	}

	if t.calls[source] == nil {
		t.calls[source] = make(map[string][]ExecutionCall)
	}
	t.calls[source][result] = append(t.calls[source][result], ExecutionCall{StartPort: startPort, Target: target})
	t.previousCalls[target] = append(t.previousCalls[target], callRef{source: source, result: result})
	t.entries = slices.DeleteFunc(t.entries, func(x NodeID) bool { return x == target })
	return nil
}

// DisconnectCall removes one execution edge. A node left without incoming
// execution edges becomes an entry node again.
func (t *Task) DisconnectCall(source NodeID, result string, target NodeID, startPort string) error {
	if startPort == "" {
		startPort = component.DefaultStartPort
	}
	calls := t.calls[source][result]
	idx := slices.Index(calls, ExecutionCall{StartPort: startPort, Target: target})
	if idx < 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no execution call %s.%s -> %s.%s",
			source, result, target, startPort)
	}
	t.calls[source][result] = slices.Delete(calls, idx, idx+1)
	t.dropCallRef(target, source, result)
	return nil
}

func (t *Task) dropCallRef(target, source NodeID, result string) {
	refs := t.previousCalls[target]
	if i := slices.Index(refs, callRef{source: source, result: result}); i >= 0 {
		refs = slices.Delete(refs, i, i+1)
	}
	if len(refs) > 0 {
		t.previousCalls[target] = refs
		return
	}
	delete(t.previousCalls, target)
	if _, ok := t.nodes[target]; ok {
		t.restoreEntry(target)
	}
}

// restoreEntry re-inserts id into the entry list at its insertion position.
func (t *Task) restoreEntry(id NodeID) {
	if slices.Contains(t.entries, id) {
		return
	}
	pos := slices.Index(t.order, id)
	at := len(t.entries)
	for i, e := range t.entries {
		if slices.Index(t.order, e) > pos {
			at = i
			break
		}
	}
	t.entries = slices.Insert(t.entries, at, id)
}

// ConnectParameter wires output of source to input of target and fixes the
// coercion used for every later transfer on this edge.
func (t *Task) ConnectParameter(source NodeID, output string, target NodeID, input string) (ParameterLink, error) {
	_, _, srcPort, dstPort, err := t.resolvePorts(source, output, target, input)
	if err != nil {
		return ParameterLink{}, err
	}
	link := ParameterLink{
		Source: source, Output: output, Target: target, Input: input,
		Mode: convert.CanBeAssignedTo(srcPort.Type, dstPort.Type),
	}
	if slices.ContainsFunc(t.params[source], sameEdge(link)) {
		return ParameterLink{}, schema.NewErrorf(schema.ErrCodeConflict, "parameter %s.%s -> %s.%s already connected",
			source, output, target, input)
	}
	t.params[source] = append(t.params[source], link)
	t.previousParams[target] = append(t.previousParams[target], link)
	return link, nil
}

// DisconnectParameter removes a parameter edge. An input no longer fed by
// any edge is reset.
func (t *Task) DisconnectParameter(source NodeID, output string, target NodeID, input string) error {
	link := ParameterLink{Source: source, Output: output, Target: target, Input: input}
	if !slices.ContainsFunc(t.params[source], sameEdge(link)) {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no parameter %s.%s -> %s.%s",
			source, output, target, input)
	}
	t.unlinkParameter(link)
	return nil
}

// unlinkParameter drops an existing edge and resets the target input unless
// another edge still feeds it.
func (t *Task) unlinkParameter(link ParameterLink) {
	t.params[link.Source] = slices.DeleteFunc(t.params[link.Source], sameEdge(link))
	t.previousParams[link.Target] = slices.DeleteFunc(t.previousParams[link.Target], sameEdge(link))
	if len(t.previousParams[link.Target]) == 0 {
		delete(t.previousParams, link.Target)
	}

	if slices.ContainsFunc(t.previousParams[link.Target], func(l ParameterLink) bool { return l.Input == link.Input }) {
		return
	}
	if dst, ok := t.nodes[link.Target]; ok {
		if port, ok := dst.desc.Input(link.Input); ok {
			dst.resetInput(port)
		}
	}
}

func sameEdge(a ParameterLink) func(ParameterLink) bool {
	return func(b ParameterLink) bool {
		return a.Source == b.Source && a.Output == b.Output && a.Target == b.Target && a.Input == b.Input
	}
}

// Reset disposes every component and clears the graph, entry nodes included.
func (t *Task) Reset() {
	for _, id := range t.order {
		if d, ok := t.nodes[id].comp.(component.Disposer); ok {
			d.Dispose()
		}
	}
	t.nodes = make(map[NodeID]*CallNode)
	t.order = nil
	t.entries = nil
	t.calls = make(map[NodeID]map[string][]ExecutionCall)
	t.previousCalls = make(map[NodeID][]callRef)
	t.params = make(map[NodeID][]ParameterLink)
	t.previousParams = make(map[NodeID][]ParameterLink)
	t.handles = make(map[component.Handle]NodeID)
	t.halts = make(map[NodeID]struct{})
}

// --- Graph queries ---

// Node returns the node with the given id.
func (t *Task) Node(id NodeID) (*CallNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (t *Task) Nodes() []*CallNode {
	out := make([]*CallNode, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.nodes[id])
	}
	return out
}

// EntryNodes returns the nodes no execution edge targets, in insertion order.
func (t *Task) EntryNodes() []*CallNode {
	out := make([]*CallNode, 0, len(t.entries))
	for _, id := range t.entries {
		out = append(out, t.nodes[id])
	}
	return out
}

// IsEntry reports whether id is an entry node.
func (t *Task) IsEntry(id NodeID) bool {
	return slices.Contains(t.entries, id)
}

// EntryNode is the node execution begins at: the first startable entry
// node, or the first entry node when all of them are operators.
func (t *Task) EntryNode() *CallNode {
	for _, id := range t.entries {
		if !t.nodes[id].desc.IsOperator {
			return t.nodes[id]
		}
	}
	if len(t.entries) > 0 {
		return t.nodes[t.entries[0]]
	}
	return nil
}

// Calls returns the execution edges fired by result of source, in connection order.
func (t *Task) Calls(source NodeID, result string) []ExecutionCall {
	return slices.Clone(t.calls[source][result])
}

// NodeToCall returns the outgoing execution edges of source keyed by result.
func (t *Task) NodeToCall(source NodeID) map[string][]ExecutionCall {
	out := make(map[string][]ExecutionCall, len(t.calls[source]))
	for r, cs := range t.calls[source] {
		if len(cs) > 0 {
			out[r] = slices.Clone(cs)
		}
	}
	return out
}

// PreviousCallNodes counts execution edges into id per source node.
func (t *Task) PreviousCallNodes(id NodeID) map[NodeID]int {
	out := make(map[NodeID]int)
	for _, ref := range t.previousCalls[id] {
		out[ref.source]++
	}
	return out
}

// NodeParameters returns the parameter edges of source as
// target → output → inputs.
func (t *Task) NodeParameters(source NodeID) map[NodeID]map[string][]string {
	out := make(map[NodeID]map[string][]string)
	for _, l := range t.params[source] {
		if out[l.Target] == nil {
			out[l.Target] = make(map[string][]string)
		}
		out[l.Target][l.Output] = append(out[l.Target][l.Output], l.Input)
	}
	return out
}

// PreviousParameterNodes counts parameter edges into id per source node.
func (t *Task) PreviousParameterNodes(id NodeID) map[NodeID]int {
	out := make(map[NodeID]int)
	for _, l := range t.previousParams[id] {
		out[l.Source]++
	}
	return out
}

// Parameters returns every parameter edge, grouped by source in node order.
func (t *Task) Parameters() []ParameterLink {
	var out []ParameterLink
	for _, id := range t.order {
		out = append(out, t.params[id]...)
	}
	return out
}

func (t *Task) incoming(id NodeID) []ParameterLink {
	return slices.Clone(t.previousParams[id])
}

func (t *Task) linked(source, target NodeID) bool {
	return slices.ContainsFunc(t.params[source], func(l ParameterLink) bool { return l.Target == target })
}

func (t *Task) resolvePorts(source NodeID, output string, target NodeID, input string) (
	src, dst *CallNode, srcPort, dstPort component.Port, err error,
) {
	var ok bool
	if src, ok = t.nodes[source]; !ok {
		err = nodeNotFound(source)
		return
	}
	if dst, ok = t.nodes[target]; !ok {
		err = nodeNotFound(target)
		return
	}
	if srcPort, ok = src.desc.Output(output); !ok {
		err = schema.NewErrorf(schema.ErrCodePortNotFound, "node %s has no output %q", source, output).
			WithNode(string(source))
		return
	}
	if dstPort, ok = dst.desc.Input(input); !ok {
		err = schema.NewErrorf(schema.ErrCodePortNotFound, "node %s has no input %q", target, input).
			WithNode(string(target))
	}
	return
}

// --- Execution ---

// Halted reports whether a breakpoint holds the task.
func (t *Task) Halted() bool { return len(t.halts) > 0 }

// Busy reports whether any node is running, queued, held or awaiting a
// completion.
func (t *Task) Busy() bool {
	if len(t.handles) > 0 {
		return true
	}
	for _, n := range t.nodes {
		if n.running > 0 || len(n.pending) > 0 || n.state != schema.NodeStateUndefined {
			return true
		}
	}
	return false
}

// Start triggers the entry node on its default start port.
func (t *Task) Start(ctx context.Context, step int64) error {
	entry := t.EntryNode()
	if entry == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "task %s has no entry node", t.id)
	}
	return entry.Start(ctx, component.DefaultStartPort, step)
}

// Update advances every running component by delta. A halted task is frozen.
func (t *Task) Update(ctx context.Context, step int64, delta time.Duration) {
	if t.Halted() {
		return
	}
	for _, n := range t.Nodes() {
		n.update(ctx, step, delta)
	}
}

// StartPending replays one queued trigger per waiting node.
func (t *Task) StartPending(ctx context.Context, step int64) {
	if t.Halted() {
		return
	}
	for _, n := range t.Nodes() {
		n.StartPending(ctx, step)
	}
}

// Resolve completes the execution waiting on h with result.
func (t *Task) Resolve(ctx context.Context, h component.Handle, result string, step int64) error {
	n, err := t.owner(h)
	if err != nil {
		return err
	}
	delete(t.handles, h)
	n.resolve(ctx, h, result, step)
	return nil
}

// Fail ends the execution waiting on h without firing a result.
func (t *Task) Fail(ctx context.Context, h component.Handle, cause error, step int64) error {
	n, err := t.owner(h)
	if err != nil {
		return err
	}
	delete(t.handles, h)
	n.reject(ctx, h, cause, step)
	return nil
}

func (t *Task) owner(h component.Handle) (*CallNode, error) {
	id, ok := t.handles[h]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "handle %d is not pending in task %s", h, t.id)
	}
	n, ok := t.nodes[id]
	if !ok {
		delete(t.handles, h)
		return nil, nodeNotFound(id)
	}
	return n, nil
}

// Drain applies the completions queued by this task's components. While
// the task is halted they stay queued. Returns the number applied.
func (t *Task) Drain(ctx context.Context, step int64) int {
	var keep []resolution
	applied := 0
	for _, r := range t.disp.drain() {
		if r.taskID != t.id || t.Halted() {
			keep = append(keep, r)
			continue
		}
		t.apply(ctx, r, step)
		applied++
	}
	t.disp.requeue(keep)
	return applied
}

func (t *Task) apply(ctx context.Context, r resolution, step int64) {
	var err error
	if r.err != nil {
		err = t.Fail(ctx, r.handle, r.err, step)
	} else {
		err = t.Resolve(ctx, r.handle, r.result, step)
	}
	if err != nil {
		t.logger.DebugContext(ctx, "stale completion ignored", "task_id", t.id, "handle", uint64(r.handle), "error", err)
	}
}

// Continue resumes the node held by a breakpoint. Once no breakpoint holds
// the task, frozen nodes wait for replay.
func (t *Task) Continue(ctx context.Context, id NodeID, step int64) error {
	n, ok := t.nodes[id]
	if !ok {
		return nodeNotFound(id)
	}
	switch n.state {
	case schema.NodeStateBreakStart:
		port := n.breakPort
		n.breakPort = ""
		n.setState(ctx, step, schema.NodeStateUndefined)
		n.start(ctx, port, step, true)
	case schema.NodeStateBreakEnd:
		result, done := n.breakResult, n.breakDone
		n.breakResult, n.breakDone = "", false
		n.setState(ctx, step, schema.NodeStateStarted)
		n.propagate(ctx, step, result)
		n.settle(ctx, step, done)
	default:
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "node %s is not at a breakpoint (%s)", id, n.state).
			WithNode(string(id))
	}

	if !t.Halted() {
		for _, other := range t.Nodes() {
			if other.state == schema.NodeStateFreezeByBreak {
				other.setState(ctx, step, schema.NodeStateWaitingForStart)
			}
		}
	}
	return nil
}

// Stop stops every running component and returns all nodes to Undefined
// with empty queues.
func (t *Task) Stop(ctx context.Context, step int64) error {
	var errs []error
	for _, n := range t.Nodes() {
		if n.running > 0 {
			errs = append(errs, n.Stop(ctx, step))
		}
		n.reset(ctx, step)
	}
	return errors.Join(errs...)
}

// Abort aborts every running component and clears the graph's execution state.
func (t *Task) Abort(ctx context.Context, step int64) error {
	var errs []error
	for _, n := range t.Nodes() {
		if n.running > 0 {
			errs = append(errs, n.Abort(ctx, step))
		}
		n.reset(ctx, step)
	}
	return errors.Join(errs...)
}

// Suspend suspends every running component.
func (t *Task) Suspend(ctx context.Context, step int64) error {
	var errs []error
	for _, n := range t.Nodes() {
		if n.running > 0 {
			errs = append(errs, n.Suspend(ctx, step))
		}
	}
	return errors.Join(errs...)
}

// Resume resumes every suspended component.
func (t *Task) Resume(ctx context.Context, step int64) error {
	var errs []error
	for _, n := range t.Nodes() {
		if n.suspended {
			errs = append(errs, n.Resume(ctx, step))
		}
	}
	return errors.Join(errs...)
}

// --- Observation ---

// NodeInfo is a point-in-time view of one node.
type NodeInfo struct {
	ID            NodeID           `json:"id"`
	Kind          string           `json:"kind"`
	State         schema.NodeState `json:"state"`
	Running       int              `json:"running"`
	Pending       []string         `json:"pending,omitempty"`
	LastStartStep int64            `json:"last_start_step"`
	Entry         bool             `json:"entry,omitempty"`
	Operator      bool             `json:"operator,omitempty"`
}

// Snapshot describes every node in insertion order.
func (t *Task) Snapshot() []NodeInfo {
	out := make([]NodeInfo, 0, len(t.order))
	for _, n := range t.Nodes() {
		out = append(out, NodeInfo{
			ID:            n.id,
			Kind:          n.desc.Kind,
			State:         n.state,
			Running:       n.running,
			Pending:       n.PendingStartPorts(),
			LastStartStep: n.lastStartStep,
			Entry:         t.IsEntry(n.id),
			Operator:      n.desc.IsOperator,
		})
	}
	return out
}

// CallEdge is one execution edge of a TaskGraph.
type CallEdge struct {
	Source    NodeID `json:"source"`
	Result    string `json:"result"`
	Target    NodeID `json:"target"`
	StartPort string `json:"start_port"`
}

// TaskGraph is a point-in-time view of a task's nodes and edges.
type TaskGraph struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	Nodes      []NodeInfo      `json:"nodes"`
	Calls      []CallEdge      `json:"calls,omitempty"`
	Parameters []ParameterLink `json:"parameters,omitempty"`
}

// Graph describes the task's nodes and edges. Calls are ordered by source
// node, then result name, then connection order.
func (t *Task) Graph() TaskGraph {
	g := TaskGraph{ID: t.id, Name: t.name, Nodes: t.Snapshot(), Parameters: t.Parameters()}
	for _, id := range t.order {
		results := make([]string, 0, len(t.calls[id]))
		for r := range t.calls[id] {
			results = append(results, r)
		}
		slices.Sort(results)
		for _, r := range results {
			for _, c := range t.calls[id][r] {
				g.Calls = append(g.Calls, CallEdge{Source: id, Result: r, Target: c.Target, StartPort: c.StartPort})
			}
		}
	}
	return g
}

func (t *Task) emitNode(ctx context.Context, fn func(context.Context, *NodeEvent), n *CallNode, step int64, fill func(*NodeEvent)) {
	if fn == nil {
		return
	}
	e := &NodeEvent{
		TaskID:    t.id,
		NodeID:    n.id,
		Kind:      n.desc.Kind,
		Step:      step,
		Timestamp: time.Now().UTC(),
	}
	if fill != nil {
		fill(e)
	}
	fn(ctx, e)
}

// outputChanged reports a component's own output write for every wired edge
// leaving that output. It moves no values.
func (t *Task) outputChanged(n *CallNode, name string) {
	fn := t.hooks.OnOutputChanged
	if fn == nil {
		return
	}
	for _, link := range t.params[n.id] {
		if link.Output != name {
			continue
		}
		fn(context.Background(), &TransferEvent{
			TaskID:    t.id,
			Link:      link,
			Step:      n.lastStartStep,
			Mode:      link.Mode,
			Value:     n.comp.Value(name),
			Timestamp: time.Now().UTC(),
		})
	}
}

func nodeNotFound(id NodeID) *schema.GraphError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id).WithNode(string(id))
}
