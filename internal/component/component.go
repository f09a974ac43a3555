// Package component defines the contract between the call-graph engine and
// the executable units it hosts.
package component

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/pkg/schema"
)

// DefaultStartPort is the start port every non-operator component accepts.
const DefaultStartPort = "Start"

// Handle identifies an outstanding asynchronous completion.
type Handle uint64

// Port describes one named, typed value slot of a component.
type Port struct {
	Name    string       `json:"name"`
	Type    convert.Type `json:"type"`
	Default any          `json:"default,omitempty"`
}

// Descriptor is the static metadata of a component kind.
type Descriptor struct {
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Inputs      []Port `json:"inputs,omitempty"`
	Outputs     []Port `json:"outputs,omitempty"`
	// Results lists the result ports a finished execution can fire.
	Results []string `json:"results,omitempty"`
	// IsOperator marks pure value sources: evaluated synchronously on demand,
	// never started, never queued.
	IsOperator bool `json:"is_operator,omitempty"`
	// Updatable components run across several ticks and see live inputs.
	Updatable bool `json:"updatable,omitempty"`
	// AdditionalStartPorts are accepted next to DefaultStartPort. A trigger on
	// one of them while the component runs is delivered without queuing.
	AdditionalStartPorts []string `json:"additional_start_ports,omitempty"`
	MaxStartCount        int      `json:"max_start_count,omitempty"`
}

// Input returns the input port with the given name.
func (d Descriptor) Input(name string) (Port, bool) {
	return findPort(d.Inputs, name)
}

// Output returns the output port with the given name.
func (d Descriptor) Output(name string) (Port, bool) {
	return findPort(d.Outputs, name)
}

// HasResult reports whether name is one of the result ports.
func (d Descriptor) HasResult(name string) bool {
	return slices.Contains(d.Results, name)
}

// HasStartPort reports whether the component can be started on port.
// Operators have no start ports.
func (d Descriptor) HasStartPort(port string) bool {
	if d.IsOperator {
		return false
	}
	return port == DefaultStartPort || slices.Contains(d.AdditionalStartPorts, port)
}

// IsControlPort reports whether port is an additional start port.
func (d Descriptor) IsControlPort(port string) bool {
	return port != DefaultStartPort && slices.Contains(d.AdditionalStartPorts, port)
}

// StartLimit is the number of concurrent executions allowed before triggers queue.
func (d Descriptor) StartLimit() int {
	if d.MaxStartCount < 1 {
		return 1
	}
	return d.MaxStartCount
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	// OutcomePending means the execution is still in progress.
	OutcomePending OutcomeKind = iota
	// OutcomeCompleted means the execution finished and fires Result.
	OutcomeCompleted
	// OutcomeYielded fires Result but keeps the execution running.
	OutcomeYielded
)

// Outcome is what a lifecycle call reports back to the engine.
type Outcome struct {
	Kind   OutcomeKind
	Result string
	// Handle is set on pending outcomes that will be finished through
	// Host.Resolve or Host.Fail. Zero means the component finishes itself
	// from Update.
	Handle Handle
}

// Completed finishes the execution on the given result port.
func Completed(result string) Outcome {
	return Outcome{Kind: OutcomeCompleted, Result: result}
}

// Pending keeps the execution running. Pass a non-zero handle when the
// completion arrives through the host.
func Pending(h Handle) Outcome {
	return Outcome{Kind: OutcomePending, Handle: h}
}

// Yielded fires result without finishing the execution.
func Yielded(result string) Outcome {
	return Outcome{Kind: OutcomeYielded, Result: result}
}

// Env is the simulation context handed to every lifecycle call.
type Env struct {
	Step   int64
	Delta  time.Duration
	TaskID string
	Node   string
	Host   Host
	Logger *slog.Logger
}

// SignalBus delivers named signals between components of all tasks
// sharing a host.
type SignalBus interface {
	Emit(ctx context.Context, sig schema.Signal)
	Subscribe(name string, fn func(schema.Signal)) (cancel func())
}

// Host is the driver side of the contract. Resolve and Fail may be called
// from any goroutine; the driver applies them on its own serialized path.
type Host interface {
	NewHandle() Handle
	Resolve(h Handle, result string)
	Fail(h Handle, err error)
	// Go runs fn on the driver's worker pool and resolves h with its result.
	Go(h Handle, fn func(ctx context.Context) (string, error)) error
	Signals() SignalBus
}

// Component is an executable unit hosted by a call-graph node.
type Component interface {
	Descriptor() Descriptor
	Value(name string) any
	SetValue(name string, v any)

	Start(ctx context.Context, env Env, port string) (Outcome, error)
	Update(ctx context.Context, env Env) (Outcome, error)
	Stop(ctx context.Context, env Env) error
	Suspend(ctx context.Context, env Env) error
	Resume(ctx context.Context, env Env) error
	Abort(ctx context.Context, env Env) error
}

// Notifier is implemented by components that report changes of their own
// values.
type Notifier interface {
	OnPropertyChanged(fn func(name string))
}

// Disposer is implemented by components holding resources beyond their
// node's lifetime.
type Disposer interface {
	Dispose()
}
