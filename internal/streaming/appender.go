package streaming

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/internal/store"
)

// EventAppender persists events. The engine, the store and the event log
// all speak it.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// Appender publishes every appended event on a hub after handing it to an
// optional next appender, so a Manager can persist and stream through a
// single sink.
type Appender struct {
	hub    EventHub
	next   EventAppender
	logger *slog.Logger
}

// NewAppender creates an Appender. next may be nil.
func NewAppender(hub EventHub, next EventAppender, logger *slog.Logger) *Appender {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Appender{hub: hub, next: next, logger: logger}
}

// AppendEvent forwards ev to the next appender and then to the hub. A
// failure of the next appender is returned and the event is not streamed.
func (a *Appender) AppendEvent(ctx context.Context, ev *store.Event) error {
	if a.next != nil {
		if err := a.next.AppendEvent(ctx, ev); err != nil {
			return err
		}
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	err := a.hub.Publish(ctx, StreamEvent{
		TaskID:    ev.RunID,
		NodeID:    ev.NodeID,
		EventType: ev.Type,
		Step:      ev.Step,
		Payload:   ev.Payload,
		Timestamp: ts,
	})
	if err != nil {
		a.logger.WarnContext(ctx, "publish event", "type", ev.Type, "error", err)
	}
	return nil
}
