package schema

// Event type constants for the run event log and the streaming hub.
const (
	EventTaskStarted   = "task_started"
	EventTaskStopped   = "task_stopped"
	EventTaskSuspended = "task_suspended"
	EventTaskResumed   = "task_resumed"
	EventTaskCompleted = "task_completed"

	EventNodeStateChanged = "node_state_changed"
	EventNodeReturned     = "node_returned"
	EventNodeFailed       = "node_failed"
	EventNodeAborted      = "node_aborted"
	EventNodeStopped      = "node_stopped"

	EventOutputChanged = "output_changed"
	EventSignalEmitted = "signal_emitted"
)

// NodeState is the lifecycle state of a call node inside a task graph.
type NodeState string

const (
	NodeStateUndefined       NodeState = "undefined"
	NodeStateStarted         NodeState = "started"
	NodeStateWaitingForStart NodeState = "waiting_for_start"
	NodeStateBreakStart      NodeState = "break_start"
	NodeStateBreakEnd        NodeState = "break_end"
	NodeStateFreezeByBreak   NodeState = "freeze_by_break"
)

// IsBreak reports whether the state is one of the debugger halt states.
func (s NodeState) IsBreak() bool {
	return s == NodeStateBreakStart || s == NodeStateBreakEnd
}

// TaskStatus is the lifecycle state of a task managed by the task manager.
type TaskStatus string

const (
	TaskStatusIdle      TaskStatus = "idle"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSuspended TaskStatus = "suspended"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusStopped   TaskStatus = "stopped"
)
