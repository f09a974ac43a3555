// Package streaming fans engine events out to live observers.
package streaming

import (
	"context"
	"encoding/json"
	"time"
)

// StreamEvent is a real-time event emitted while tasks run.
type StreamEvent struct {
	TaskID    string          `json:"task_id"`
	NodeID    string          `json:"node_id,omitempty"`
	EventType string          `json:"event_type"`
	Step      int64           `json:"step"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Empty fields match everything.
type EventFilter struct {
	TaskID     string   `json:"task_id,omitempty"`
	NodeID     string   `json:"node_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time task events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
