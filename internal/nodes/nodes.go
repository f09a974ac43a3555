// Package nodes provides the built-in components a task definition can
// reference by kind.
package nodes

import (
	"fmt"
	"sort"
	"time"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/internal/expressions"
)

// Built-in component kinds.
const (
	KindValue    = "value"
	KindExpr     = "expr"
	KindBranch   = "branch"
	KindJQ       = "jq"
	KindDelay    = "delay"
	KindLoop     = "loop"
	KindFlipFlop = "flipflop"
	KindLog      = "log"
	KindEmit     = "emit"
	KindWait     = "wait"
	KindExec     = "exec"
)

// Shared port and result names.
const (
	portCancel = "Cancel"
	resultEnd  = "End"
)

const (
	defaultExecTimeout   = 30 * time.Second
	defaultMaxOutputSize = 1 << 20
)

// Config tunes the built-in components.
type Config struct {
	// ExecTimeout bounds an exec node without its own timeout. Default 30s.
	ExecTimeout time.Duration
	// MaxOutputSize caps captured stdout and stderr per stream. Default 1MiB.
	MaxOutputSize int64
}

// Register adds every built-in kind to reg.
func Register(reg *component.Registry, cfg Config) error {
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = defaultExecTimeout
	}
	if cfg.MaxOutputSize <= 0 {
		cfg.MaxOutputSize = defaultMaxOutputSize
	}
	exprEngine := expressions.NewExprEngine()
	jqEngine := expressions.NewGoJQEngine()

	kinds := []struct {
		kind, description string
		factory           component.Factory
	}{
		{KindValue, "Operator publishing a constant value", newValue},
		{KindExpr, "Operator computing an expr-lang expression over its inputs", exprFactory(exprEngine)},
		{KindBranch, "Fires True or False from a CEL condition", newBranch},
		{KindJQ, "Operator running a jq query over its inputs", jqFactory(jqEngine)},
		{KindDelay, "Returns End once its Duration has elapsed in simulation time", newDelay},
		{KindLoop, "Fires Iteration Count times, one per Interval, then End", newLoop},
		{KindFlipFlop, "Alternates between the Flip and Flop results", newFlipFlop},
		{KindLog, "Logs its Message and returns End", newLog},
		{KindEmit, "Broadcasts a signal and returns End", newEmit},
		{KindWait, "Returns Received when a signal arrives", newWait},
		{KindExec, "Runs a command on the worker pool", execFactory(cfg)},
	}
	for _, k := range kinds {
		if err := reg.Register(k.kind, k.description, k.factory); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in kind.
func NewRegistry(cfg Config) (*component.Registry, error) {
	reg := component.NewRegistry()
	if err := Register(reg, cfg); err != nil {
		return nil, err
	}
	return reg, nil
}

// parsePorts turns a name → type map into ports sorted by name.
func parsePorts(decl map[string]string) ([]component.Port, error) {
	names := make([]string, 0, len(decl))
	for name := range decl {
		names = append(names, name)
	}
	sort.Strings(names)

	ports := make([]component.Port, 0, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty port name")
		}
		t, err := convert.ParseType(decl[name])
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", name, err)
		}
		ports = append(ports, component.Port{Name: name, Type: t})
	}
	return ports, nil
}

func portNames(ports []component.Port) []string {
	out := make([]string, len(ports))
	for i, p := range ports {
		out[i] = p.Name
	}
	return out
}
