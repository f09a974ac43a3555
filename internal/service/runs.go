package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/internal/store"
	"github.com/rendis/callgraph/pkg/schema"
)

// RunSync mirrors task status transitions onto persisted runs.
type RunSync struct {
	store  store.Store
	logger *slog.Logger
}

// NewRunSync creates a RunSync writing to st.
func NewRunSync(st store.Store, logger *slog.Logger) *RunSync {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RunSync{store: st, logger: logger}
}

// StatusHook returns the manager hook that updates runs. Tasks without a
// persisted run are ignored.
func (r *RunSync) StatusHook() engine.StatusHook {
	return func(ctx context.Context, taskID string, _, to schema.TaskStatus) {
		now := time.Now().UTC()
		update := store.RunUpdate{Status: &to}
		switch to {
		case schema.TaskStatusRunning:
			update.StartedAt = &now
		case schema.TaskStatusCompleted, schema.TaskStatusStopped:
			update.CompletedAt = &now
		}
		if err := r.store.UpdateRun(ctx, taskID, update); err != nil && !schema.HasCode(err, schema.ErrCodeNotFound) {
			r.logger.ErrorContext(ctx, "update run status", "task_id", taskID, "status", string(to), "error", err)
		}
	}
}
