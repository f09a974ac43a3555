package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/pkg/schema"
)

// --- TaskFSM Tests ---

func TestTaskFSM_ValidTransitions(t *testing.T) {
	app := &mockAppender{}
	fsm := NewTaskFSM(app)
	ctx := context.Background()

	require.NoError(t, fsm.Transition(ctx, "t1", schema.TaskStatusIdle, schema.TaskStatusRunning))
	require.NoError(t, fsm.Transition(ctx, "t1", schema.TaskStatusRunning, schema.TaskStatusSuspended))
	require.NoError(t, fsm.Transition(ctx, "t1", schema.TaskStatusSuspended, schema.TaskStatusRunning))
	require.NoError(t, fsm.Transition(ctx, "t1", schema.TaskStatusRunning, schema.TaskStatusCompleted))
	require.NoError(t, fsm.Transition(ctx, "t1", schema.TaskStatusCompleted, schema.TaskStatusRunning))
	require.NoError(t, fsm.Transition(ctx, "t1", schema.TaskStatusRunning, schema.TaskStatusStopped))

	assert.Equal(t, []string{
		schema.EventTaskStarted,
		schema.EventTaskSuspended,
		schema.EventTaskResumed,
		schema.EventTaskCompleted,
		schema.EventTaskStarted,
		schema.EventTaskStopped,
	}, app.Types())
	for _, e := range app.Events() {
		assert.Equal(t, "t1", e.RunID)
		assert.Empty(t, e.NodeID)
	}
}

func TestTaskFSM_InvalidTransition(t *testing.T) {
	app := &mockAppender{}
	fsm := NewTaskFSM(app)

	err := fsm.Transition(context.Background(), "t1", schema.TaskStatusIdle, schema.TaskStatusCompleted)
	require.Error(t, err)

	ge, ok := err.(*schema.GraphError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeInvalidTransition, ge.Code)
	assert.Contains(t, ge.Message, "idle")
	assert.Contains(t, ge.Message, "completed")
	assert.Empty(t, app.Events())
}

func TestTaskFSM_SuspendedCannotComplete(t *testing.T) {
	fsm := NewTaskFSM(nil)
	err := fsm.Transition(context.Background(), "t1", schema.TaskStatusSuspended, schema.TaskStatusCompleted)
	assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidTransition))
}

func TestTaskFSM_NilAppender(t *testing.T) {
	fsm := NewTaskFSM(nil)
	assert.NoError(t, fsm.Transition(context.Background(), "t1", schema.TaskStatusIdle, schema.TaskStatusRunning))
}

func TestTaskFSM_EventEmitFailure(t *testing.T) {
	fsm := NewTaskFSM(&failAppender{})

	err := fsm.Transition(context.Background(), "t1", schema.TaskStatusIdle, schema.TaskStatusRunning)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestTaskFSM_BeforeHook(t *testing.T) {
	app := &mockAppender{}
	fsm := NewTaskFSM(app)

	var hookCalled bool
	fsm.OnBefore(schema.TaskStatusIdle, schema.TaskStatusRunning, func(from, to string) error {
		hookCalled = true
		assert.Equal(t, "idle", from)
		assert.Equal(t, "running", to)
		return nil
	})

	require.NoError(t, fsm.Transition(context.Background(), "t1", schema.TaskStatusIdle, schema.TaskStatusRunning))
	assert.True(t, hookCalled)
}

func TestTaskFSM_BeforeHookError(t *testing.T) {
	app := &mockAppender{}
	fsm := NewTaskFSM(app)

	fsm.OnBefore(schema.TaskStatusIdle, schema.TaskStatusRunning, func(from, to string) error {
		return errors.New("hook failed")
	})

	err := fsm.Transition(context.Background(), "t1", schema.TaskStatusIdle, schema.TaskStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook failed")
	assert.Empty(t, app.Events(), "event must not be emitted when the before hook fails")
}

func TestTaskFSM_AfterHook(t *testing.T) {
	app := &mockAppender{}
	fsm := NewTaskFSM(app)

	var eventsAtHook int
	fsm.OnAfter(schema.TaskStatusIdle, schema.TaskStatusRunning, func(from, to string) error {
		eventsAtHook = len(app.Events())
		return nil
	})

	require.NoError(t, fsm.Transition(context.Background(), "t1", schema.TaskStatusIdle, schema.TaskStatusRunning))
	assert.Equal(t, 1, eventsAtHook, "event is emitted before the after hook")
}

// --- Node transition table ---

func TestCheckNodeTransition(t *testing.T) {
	valid := []struct{ from, to schema.NodeState }{
		{schema.NodeStateUndefined, schema.NodeStateStarted},
		{schema.NodeStateStarted, schema.NodeStateBreakEnd},
		{schema.NodeStateBreakEnd, schema.NodeStateStarted},
		{schema.NodeStateFreezeByBreak, schema.NodeStateWaitingForStart},
		{schema.NodeStateWaitingForStart, schema.NodeStateUndefined},
		{schema.NodeStateStarted, schema.NodeStateStarted},
	}
	for _, tc := range valid {
		assert.NoError(t, checkNodeTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	invalid := []struct{ from, to schema.NodeState }{
		{schema.NodeStateBreakStart, schema.NodeStateStarted},
		{schema.NodeStateUndefined, schema.NodeStateBreakEnd},
		{schema.NodeStateFreezeByBreak, schema.NodeStateStarted},
		{schema.NodeStateWaitingForStart, schema.NodeStateStarted},
	}
	for _, tc := range invalid {
		err := checkNodeTransition(tc.from, tc.to)
		assert.True(t, schema.HasCode(err, schema.ErrCodeInvalidTransition), "%s -> %s", tc.from, tc.to)
	}
}

func TestValidNodeTransitions_EveryStateListed(t *testing.T) {
	for _, s := range []schema.NodeState{
		schema.NodeStateUndefined,
		schema.NodeStateStarted,
		schema.NodeStateWaitingForStart,
		schema.NodeStateBreakStart,
		schema.NodeStateBreakEnd,
		schema.NodeStateFreezeByBreak,
	} {
		assert.NotEmpty(t, ValidNodeTransitions[s], "state %s has no exits", s)
	}
}
