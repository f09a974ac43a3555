package nodes

import (
	"context"
	"fmt"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/expressions"
)

type branchConfig struct {
	Condition string            `json:"condition"`
	Ports     map[string]string `json:"ports"`
}

// Branch evaluates a CEL condition over its inputs and fires True or False.
type Branch struct {
	*component.Base
	engine    *expressions.CELEngine
	condition string
}

func newBranch(config map[string]any) (component.Component, error) {
	var cfg branchConfig
	if err := component.DecodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if cfg.Condition == "" {
		return nil, fmt.Errorf("branch: condition is required")
	}
	inputs, err := parsePorts(cfg.Ports)
	if err != nil {
		return nil, err
	}
	engine, err := expressions.NewCELEngine(portNames(inputs)...)
	if err != nil {
		return nil, err
	}
	if err := engine.Compile(cfg.Condition); err != nil {
		return nil, err
	}
	return &Branch{
		Base: component.NewBase(component.Descriptor{
			Kind:    KindBranch,
			Inputs:  inputs,
			Results: []string{"True", "False"},
		}),
		engine:    engine,
		condition: cfg.Condition,
	}, nil
}

func (c *Branch) Start(ctx context.Context, _ component.Env, _ string) (component.Outcome, error) {
	ok, err := c.engine.EvaluateBool(ctx, c.condition, c.Inputs())
	if err != nil {
		return component.Outcome{}, err
	}
	if ok {
		return component.Completed("True"), nil
	}
	return component.Completed("False"), nil
}
