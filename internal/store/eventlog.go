package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rendis/callgraph/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvent appends an event with a monotonically increasing per-run sequence.
// The write lock is taken before the sequence is read so concurrent writers cannot interleave.
func (el *EventLog) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := el.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction; a write forces the lock.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a run with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, runID, since)
}

// GetEventsByType returns events of a given type matching the filter.
func (el *EventLog) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	return el.store.GetEventsByType(ctx, eventType, filter)
}

// nodeEventPayload is the subset of recorder payload fields replay reads.
type nodeEventPayload struct {
	Kind   string           `json:"kind,omitempty"`
	From   schema.NodeState `json:"from,omitempty"`
	To     schema.NodeState `json:"to,omitempty"`
	Result string           `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// ReplayEvents rebuilds per-node snapshots from a run's event log.
// Sequence numbers must be contiguous starting at 1.
func (el *EventLog) ReplayEvents(ctx context.Context, runID string) (map[string]*NodeSnapshot, error) {
	events, err := el.store.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	snapshots := make(map[string]*NodeSnapshot)
	var expected int64 = 1
	for _, ev := range events {
		if ev.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"event sequence gap in run %s: expected %d, got %d", runID, expected, ev.Sequence)
		}
		expected++

		if ev.NodeID == "" {
			continue
		}
		snap, ok := snapshots[ev.NodeID]
		if !ok {
			snap = &NodeSnapshot{NodeID: ev.NodeID, State: schema.NodeStateUndefined}
			snapshots[ev.NodeID] = snap
		}

		var p nodeEventPayload
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode event %d payload: %w", ev.Sequence, err)
			}
		}
		if p.Kind != "" {
			snap.Kind = p.Kind
		}
		snap.LastStep = ev.Step

		switch ev.Type {
		case schema.EventNodeStateChanged:
			if p.To != "" {
				snap.State = p.To
			}
		case schema.EventNodeReturned:
			snap.Returns++
			snap.LastResult = p.Result
		case schema.EventNodeFailed:
			snap.Failures++
			snap.LastError = p.Error
		case schema.EventNodeStopped, schema.EventNodeAborted:
			snap.State = schema.NodeStateUndefined
		}
	}
	return snapshots, nil
}
