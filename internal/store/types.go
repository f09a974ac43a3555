package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/callgraph/pkg/schema"
)

// Run is the persisted record of a task loaded into a manager.
type Run struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Definition  schema.TaskDefinition `json:"definition"`
	Status      schema.TaskStatus     `json:"status"`
	Error       json.RawMessage       `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Event is an immutable entry in a run's event log.
type Event struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Step      int64           `json:"step"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// RunUpdate specifies mutable fields of a run.
type RunUpdate struct {
	Status      *schema.TaskStatus `json:"status,omitempty"`
	Error       json.RawMessage    `json:"error,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status *schema.TaskStatus `json:"status,omitempty"`
	Name   string             `json:"name,omitempty"`
	Since  *time.Time         `json:"since,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	RunID  string     `json:"run_id,omitempty"`
	NodeID string     `json:"node_id,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

// NodeSnapshot is a node's state reconstructed from the event log.
type NodeSnapshot struct {
	NodeID     string           `json:"node_id"`
	Kind       string           `json:"kind,omitempty"`
	State      schema.NodeState `json:"state"`
	Returns    int              `json:"returns"`
	LastResult string           `json:"last_result,omitempty"`
	Failures   int              `json:"failures"`
	LastError  string           `json:"last_error,omitempty"`
	LastStep   int64            `json:"last_step"`
}
