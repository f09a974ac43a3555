package schema

import "time"

// Signal is a named notification broadcast on the signal bus.
// Flow-control components use it to implement cross-graph wait/notify.
type Signal struct {
	Name      string    `json:"name"`
	Payload   any       `json:"payload,omitempty"`
	Source    string    `json:"source,omitempty"`
	Step      int64     `json:"step"`
	EmittedAt time.Time `json:"emitted_at"`
}

// ControlAction enumerates the lifecycle commands accepted for a running task.
type ControlAction string

const (
	ControlStop     ControlAction = "stop"
	ControlSuspend  ControlAction = "suspend"
	ControlResume   ControlAction = "resume"
	ControlContinue ControlAction = "continue"
)
