package nodes

import (
	"context"
	"fmt"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/internal/expressions"
)

// expressionConfig is shared by the expr and jq operators.
type expressionConfig struct {
	Expression string            `json:"expression"`
	Ports      map[string]string `json:"ports"`
	Type       string            `json:"type"`
}

func (c *expressionConfig) descriptor(kind string) (component.Descriptor, error) {
	if c.Expression == "" {
		return component.Descriptor{}, fmt.Errorf("%s: expression is required", kind)
	}
	inputs, err := parsePorts(c.Ports)
	if err != nil {
		return component.Descriptor{}, err
	}
	out, err := convert.ParseType(c.Type)
	if err != nil {
		return component.Descriptor{}, err
	}
	return component.Descriptor{
		Kind:       kind,
		IsOperator: true,
		Inputs:     inputs,
		Outputs:    []component.Port{{Name: "Result", Type: out}},
	}, nil
}

// Expression is an operator publishing the result of an expression over
// its inputs on "Result". The result is coerced to the declared type.
type Expression struct {
	*component.Base
	engine     expressions.Engine
	expression string
}

func newExpression(kind string, engine expressions.Engine, config map[string]any) (*Expression, error) {
	var cfg expressionConfig
	if err := component.DecodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	desc, err := cfg.descriptor(kind)
	if err != nil {
		return nil, err
	}
	if c, ok := engine.(expressions.Compiler); ok {
		if err := c.Compile(cfg.Expression); err != nil {
			return nil, err
		}
	}
	return &Expression{
		Base:       component.NewBase(desc),
		engine:     engine,
		expression: cfg.Expression,
	}, nil
}

func exprFactory(engine *expressions.ExprEngine) component.Factory {
	return func(config map[string]any) (component.Component, error) {
		return newExpression(KindExpr, engine, config)
	}
}

func jqFactory(engine *expressions.GoJQEngine) component.Factory {
	return func(config map[string]any) (component.Component, error) {
		return newExpression(KindJQ, engine, config)
	}
}

func (c *Expression) Start(ctx context.Context, _ component.Env, _ string) (component.Outcome, error) {
	v, err := c.engine.Evaluate(ctx, c.expression, c.Inputs())
	if err != nil {
		return component.Outcome{}, err
	}
	port := c.Descriptor().Outputs[0]
	out, err := convert.Coerce(v, port.Type)
	if err != nil {
		return component.Outcome{}, fmt.Errorf("%s result %v is not a %s: %w", c.Descriptor().Kind, v, port.Type, err)
	}
	c.Publish(port.Name, out)
	return component.Completed(""), nil
}
