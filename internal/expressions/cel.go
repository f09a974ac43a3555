package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rendis/callgraph/pkg/schema"
)

// CELEngine implements Engine using Google's Common Expression Language.
// It drives the condition of branch components.
//
// The environment declares every configured variable as dyn, plus
// `inputs`, a map holding all variables passed to Evaluate. Declared
// variables missing from an evaluation are bound to null.
type CELEngine struct {
	env  *cel.Env
	vars []string

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a CEL engine declaring vars as top-level variables.
func NewCELEngine(vars ...string) (*CELEngine, error) {
	opts := []cel.EnvOption{cel.Variable("inputs", cel.MapType(cel.StringType, cel.DynType))}
	for _, v := range vars {
		if v == "inputs" {
			continue
		}
		opts = append(opts, cel.Variable(v, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{
		env:   env,
		vars:  vars,
		cache: make(map[string]cel.Program),
	}, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Compile type-checks the expression and caches the program.
func (e *CELEngine) Compile(expression string) error {
	_, err := e.getOrCompile(expression)
	return err
}

func (e *CELEngine) Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error) {
	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.ContextEval(ctx, e.activation(vars))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out.Value(), nil
}

// EvaluateBool evaluates a condition. Non-boolean results are an error.
func (e *CELEngine) EvaluateBool(ctx context.Context, expression string, vars map[string]any) (bool, error) {
	v, err := e.Evaluate(ctx, expression, vars)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL condition %q returned %T, want bool", expression, v).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

func (e *CELEngine) activation(vars map[string]any) map[string]any {
	act := make(map[string]any, len(e.vars)+1)
	inputs := make(map[string]any, len(vars))
	for k, v := range vars {
		inputs[k] = v
	}
	for _, name := range e.vars {
		act[name] = vars[name]
	}
	act["inputs"] = inputs
	return act
}

func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	e.mu.RLock()
	prg, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	e.cache[expression] = prg
	return prg, nil
}

var (
	_ Engine   = (*CELEngine)(nil)
	_ Compiler = (*CELEngine)(nil)
)
