// Package expressions evaluates the expressions carried by built-in
// components. Variables are the component's input values keyed by port name.
package expressions

import "context"

// Engine evaluates an expression against a set of named variables.
// Three implementations: Expr (values), CEL (conditions), GoJQ (transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error)
}

// Compiler is implemented by engines that can check an expression ahead of
// evaluation, so configuration errors surface when a node is created.
type Compiler interface {
	Compile(expression string) error
}
