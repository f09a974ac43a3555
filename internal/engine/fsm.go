package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/rendis/callgraph/internal/store"
	"github.com/rendis/callgraph/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the Store and EventLog; used to persist engine events.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// --- Task FSM ---

type taskHookKey struct {
	from, to schema.TaskStatus
}

// TaskFSM manages task lifecycle state transitions.
type TaskFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[taskHookKey][]TransitionHook
	after    map[taskHookKey][]TransitionHook
}

// NewTaskFSM creates a TaskFSM. A nil appender disables event emission.
func NewTaskFSM(appender EventAppender) *TaskFSM {
	return &TaskFSM{
		appender: appender,
		before:   make(map[taskHookKey][]TransitionHook),
		after:    make(map[taskHookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a task transition.
func (f *TaskFSM) OnBefore(from, to schema.TaskStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := taskHookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a task transition.
func (f *TaskFSM) OnAfter(from, to schema.TaskStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := taskHookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates a task state transition and emits the matching event.
// The caller records the new status.
func (f *TaskFSM) Transition(ctx context.Context, taskID string, from, to schema.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidTaskTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid task transition: %s -> %s", from, to).
			WithDetails(map[string]any{"task_id": taskID, "from": string(from), "to": string(to)})
	}

	key := taskHookKey{from, to}
	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := taskEventType(from, to); eventType != "" && f.appender != nil {
		event := &store.Event{RunID: taskID, Type: eventType}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit task event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}
	return nil
}

func isValidTaskTransition(from, to schema.TaskStatus) bool {
	return slices.Contains(ValidTaskTransitions[from], to)
}

func taskEventType(from, to schema.TaskStatus) string {
	switch to {
	case schema.TaskStatusRunning:
		if from == schema.TaskStatusSuspended {
			return schema.EventTaskResumed
		}
		return schema.EventTaskStarted
	case schema.TaskStatusSuspended:
		return schema.EventTaskSuspended
	case schema.TaskStatusCompleted:
		return schema.EventTaskCompleted
	case schema.TaskStatusStopped:
		return schema.EventTaskStopped
	default:
		return ""
	}
}

// --- Node states ---

func checkNodeTransition(from, to schema.NodeState) error {
	if from == to || slices.Contains(ValidNodeTransitions[from], to) {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition, "invalid node transition: %s -> %s", from, to)
}

// --- Transition tables ---

// ValidTaskTransitions defines the allowed state transitions for tasks.
var ValidTaskTransitions = map[schema.TaskStatus][]schema.TaskStatus{
	schema.TaskStatusIdle:      {schema.TaskStatusRunning},
	schema.TaskStatusRunning:   {schema.TaskStatusSuspended, schema.TaskStatusCompleted, schema.TaskStatusStopped},
	schema.TaskStatusSuspended: {schema.TaskStatusRunning, schema.TaskStatusStopped},
	schema.TaskStatusCompleted: {schema.TaskStatusRunning},
	schema.TaskStatusStopped:   {schema.TaskStatusRunning},
}

// ValidNodeTransitions defines the allowed state transitions for call nodes.
// Transitions to the current state are always allowed.
var ValidNodeTransitions = map[schema.NodeState][]schema.NodeState{
	schema.NodeStateUndefined:       {schema.NodeStateStarted, schema.NodeStateWaitingForStart, schema.NodeStateBreakStart, schema.NodeStateFreezeByBreak},
	schema.NodeStateStarted:         {schema.NodeStateUndefined, schema.NodeStateWaitingForStart, schema.NodeStateBreakStart, schema.NodeStateBreakEnd, schema.NodeStateFreezeByBreak},
	schema.NodeStateWaitingForStart: {schema.NodeStateUndefined, schema.NodeStateBreakStart, schema.NodeStateBreakEnd, schema.NodeStateFreezeByBreak},
	schema.NodeStateBreakStart:      {schema.NodeStateUndefined},
	schema.NodeStateBreakEnd:        {schema.NodeStateStarted, schema.NodeStateUndefined},
	schema.NodeStateFreezeByBreak:   {schema.NodeStateWaitingForStart, schema.NodeStateUndefined},
}
