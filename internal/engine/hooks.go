package engine

import (
	"context"
	"time"

	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/pkg/schema"
)

// NodeEvent describes a lifecycle change of one call node.
type NodeEvent struct {
	TaskID    string           `json:"task_id"`
	NodeID    NodeID           `json:"node_id"`
	Kind      string           `json:"kind"`
	Step      int64            `json:"step"`
	From      schema.NodeState `json:"from,omitempty"`
	To        schema.NodeState `json:"to,omitempty"`
	Result    string           `json:"result,omitempty"`
	Err       error            `json:"-"`
	Timestamp time.Time        `json:"timestamp"`
}

// TransferEvent describes a value moving, or about to move, along a parameter edge.
type TransferEvent struct {
	TaskID    string              `json:"task_id"`
	Link      ParameterLink       `json:"link"`
	Step      int64               `json:"step"`
	Mode      convert.Assignation `json:"mode"`
	Value     any                 `json:"value,omitempty"`
	Written   bool                `json:"written"`
	Err       error               `json:"-"`
	Timestamp time.Time           `json:"timestamp"`
}

// Hooks are observation callbacks invoked synchronously on the engine's
// serialized path. Nil fields are skipped.
type Hooks struct {
	OnStateChange   func(context.Context, *NodeEvent)
	OnReturned      func(context.Context, *NodeEvent)
	OnFailed        func(context.Context, *NodeEvent)
	OnStopped       func(context.Context, *NodeEvent)
	OnAborted       func(context.Context, *NodeEvent)
	OnOutputChanged func(context.Context, *TransferEvent)
	OnTransfer      func(context.Context, *TransferEvent)
}

// ChainHooks combines several Hooks; callbacks run in argument order.
func ChainHooks(all ...Hooks) Hooks {
	return Hooks{
		OnStateChange:   chainNode(all, func(h Hooks) func(context.Context, *NodeEvent) { return h.OnStateChange }),
		OnReturned:      chainNode(all, func(h Hooks) func(context.Context, *NodeEvent) { return h.OnReturned }),
		OnFailed:        chainNode(all, func(h Hooks) func(context.Context, *NodeEvent) { return h.OnFailed }),
		OnStopped:       chainNode(all, func(h Hooks) func(context.Context, *NodeEvent) { return h.OnStopped }),
		OnAborted:       chainNode(all, func(h Hooks) func(context.Context, *NodeEvent) { return h.OnAborted }),
		OnOutputChanged: chainTransfer(all, func(h Hooks) func(context.Context, *TransferEvent) { return h.OnOutputChanged }),
		OnTransfer:      chainTransfer(all, func(h Hooks) func(context.Context, *TransferEvent) { return h.OnTransfer }),
	}
}

func chainNode(all []Hooks, pick func(Hooks) func(context.Context, *NodeEvent)) func(context.Context, *NodeEvent) {
	var fns []func(context.Context, *NodeEvent)
	for _, h := range all {
		if fn := pick(h); fn != nil {
			fns = append(fns, fn)
		}
	}
	if len(fns) == 0 {
		return nil
	}
	return func(ctx context.Context, e *NodeEvent) {
		for _, fn := range fns {
			fn(ctx, e)
		}
	}
}

func chainTransfer(all []Hooks, pick func(Hooks) func(context.Context, *TransferEvent)) func(context.Context, *TransferEvent) {
	var fns []func(context.Context, *TransferEvent)
	for _, h := range all {
		if fn := pick(h); fn != nil {
			fns = append(fns, fn)
		}
	}
	if len(fns) == 0 {
		return nil
	}
	return func(ctx context.Context, e *TransferEvent) {
		for _, fn := range fns {
			fn(ctx, e)
		}
	}
}
