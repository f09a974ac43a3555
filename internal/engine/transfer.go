package engine

import (
	"context"
	"time"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/pkg/schema"
)

// captureInitial snapshots the inputs before a fresh execution. Inputs of a
// node that is still running keep their earlier snapshot.
func (n *CallNode) captureInitial() {
	if n.running > 0 {
		return
	}
	for _, p := range n.desc.Inputs {
		n.initialValues[p.Name] = n.comp.Value(p.Name)
	}
}

func (n *CallNode) restoreInitial() {
	for name, v := range n.initialValues {
		n.comp.SetValue(name, v)
	}
}

// pullParameters refreshes every wired input from its source. Operator
// sources are evaluated first so their outputs are current.
func (n *CallNode) pullParameters(ctx context.Context, step int64) {
	seen := make(map[NodeID]bool)
	for _, link := range n.task.incoming(n.id) {
		if seen[link.Source] {
			continue
		}
		seen[link.Source] = true
		src, ok := n.task.nodes[link.Source]
		if !ok {
			continue
		}
		if src.desc.IsOperator {
			src.evaluate(ctx, step)
		}
		src.TransferParameters(ctx, n, step)
	}
}

// TransferParameters copies every output of n wired to target.
func (n *CallNode) TransferParameters(ctx context.Context, target *CallNode, step int64) {
	for _, link := range n.task.params[n.id] {
		if link.Target == target.id {
			n.task.transfer(ctx, link, step)
		}
	}
}

// ResetParameter restores an input to its pre-execution snapshot, else its
// default, else the zero value of its type.
func (n *CallNode) ResetParameter(name string) error {
	port, ok := n.desc.Input(name)
	if !ok {
		return schema.NewErrorf(schema.ErrCodePortNotFound, "node %s has no input %q", n.id, name).
			WithNode(string(n.id))
	}
	n.resetInput(port)
	return nil
}

func (n *CallNode) resetInput(port component.Port) {
	if v, ok := n.initialValues[port.Name]; ok {
		n.comp.SetValue(port.Name, v)
		return
	}
	if v, ok := n.defaultValues[port.Name]; ok {
		n.comp.SetValue(port.Name, v)
		return
	}
	n.comp.SetValue(port.Name, convert.Zero(port.Type))
}

// transfer moves one value along a parameter edge using the edge's stored
// coercion. Conversion failures write the target type's zero value;
// unassignable edges write nothing.
func (t *Task) transfer(ctx context.Context, link ParameterLink, step int64) {
	src, ok := t.nodes[link.Source]
	if !ok {
		return
	}
	dst, ok := t.nodes[link.Target]
	if !ok {
		return
	}
	t.move(ctx, src, dst, link, step)
}

func (t *Task) move(ctx context.Context, src, dst *CallNode, link ParameterLink, step int64) {
	srcPort, _ := src.desc.Output(link.Output)
	dstPort, _ := dst.desc.Input(link.Input)

	out, written, err := convert.Apply(link.Mode, src.comp.Value(link.Output), srcPort.Type, dstPort.Type)
	if written {
		dst.comp.SetValue(link.Input, out)
	}
	if err != nil {
		t.logger.DebugContext(dst.scoped(ctx, step), "parameter conversion fell back to zero value",
			"source", string(link.Source), "output", link.Output, "input", link.Input, "error", err)
	}
	if fn := t.hooks.OnTransfer; fn != nil {
		fn(ctx, &TransferEvent{
			TaskID:    t.id,
			Link:      link,
			Step:      step,
			Mode:      link.Mode,
			Value:     out,
			Written:   written,
			Err:       err,
			Timestamp: time.Now().UTC(),
		})
	}
}

// TransferParameter moves output of source into input of target, choosing
// the coercion from the current port types. The nodes need not be wired.
func (t *Task) TransferParameter(ctx context.Context, source NodeID, output string, target NodeID, input string, step int64) error {
	src, dst, srcPort, dstPort, err := t.resolvePorts(source, output, target, input)
	if err != nil {
		return err
	}
	link := ParameterLink{
		Source: source, Output: output, Target: target, Input: input,
		Mode: convert.CanBeAssignedTo(srcPort.Type, dstPort.Type),
	}
	t.move(ctx, src, dst, link, step)
	return nil
}
