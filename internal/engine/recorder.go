package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/callgraph/internal/store"
	"github.com/rendis/callgraph/pkg/schema"
)

// EventRecorder turns hook callbacks into persisted events.
type EventRecorder struct {
	appender EventAppender
	logger   *slog.Logger
}

// NewEventRecorder creates a recorder appending to a.
func NewEventRecorder(a EventAppender, logger *slog.Logger) *EventRecorder {
	return &EventRecorder{appender: a, logger: logger}
}

// Hooks returns the hook set that records node events.
func (r *EventRecorder) Hooks() Hooks {
	return Hooks{
		OnStateChange: func(ctx context.Context, e *NodeEvent) {
			r.node(ctx, schema.EventNodeStateChanged, e, map[string]any{"from": e.From, "to": e.To})
		},
		OnReturned: func(ctx context.Context, e *NodeEvent) {
			r.node(ctx, schema.EventNodeReturned, e, map[string]any{"result": e.Result})
		},
		OnFailed: func(ctx context.Context, e *NodeEvent) {
			r.node(ctx, schema.EventNodeFailed, e, map[string]any{"error": errString(e.Err)})
		},
		OnStopped: func(ctx context.Context, e *NodeEvent) {
			r.node(ctx, schema.EventNodeStopped, e, nil)
		},
		OnAborted: func(ctx context.Context, e *NodeEvent) {
			r.node(ctx, schema.EventNodeAborted, e, nil)
		},
		OnOutputChanged: func(ctx context.Context, e *TransferEvent) {
			r.append(ctx, &store.Event{
				RunID:  e.TaskID,
				NodeID: string(e.Link.Source),
				Type:   schema.EventOutputChanged,
				Step:   e.Step,
			}, map[string]any{
				"output": e.Link.Output,
				"target": e.Link.Target,
				"input":  e.Link.Input,
				"value":  e.Value,
			})
		},
	}
}

// RecordSignal persists an emitted signal with the number of receivers.
func (r *EventRecorder) RecordSignal(ctx context.Context, sig schema.Signal, delivered int) {
	r.append(ctx, &store.Event{
		RunID: sig.Source,
		Type:  schema.EventSignalEmitted,
		Step:  sig.Step,
	}, map[string]any{"name": sig.Name, "payload": sig.Payload, "delivered": delivered})
}

func (r *EventRecorder) node(ctx context.Context, eventType string, e *NodeEvent, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["kind"] = e.Kind
	r.append(ctx, &store.Event{
		RunID:     e.TaskID,
		NodeID:    string(e.NodeID),
		Type:      eventType,
		Step:      e.Step,
		Timestamp: e.Timestamp,
	}, payload)
}

func (r *EventRecorder) append(ctx context.Context, ev *store.Event, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		// Values that do not encode are recorded without the payload.
		r.logger.WarnContext(ctx, "encode event payload", "type", ev.Type, "error", err)
	} else {
		ev.Payload = raw
	}
	if err := r.appender.AppendEvent(ctx, ev); err != nil {
		r.logger.ErrorContext(ctx, "append event", "type", ev.Type, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
