package nodes

import (
	"context"
	"fmt"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
)

type valueConfig struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Value is an operator holding a constant on its "Value" output.
type Value struct {
	*component.Base
	value any
}

func newValue(config map[string]any) (component.Component, error) {
	var cfg valueConfig
	if err := component.DecodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	t, err := convert.ParseType(cfg.Type)
	if err != nil {
		return nil, err
	}
	v, err := convert.Coerce(cfg.Value, t)
	if err != nil {
		return nil, fmt.Errorf("value %v is not a %s: %w", cfg.Value, t, err)
	}
	return &Value{
		Base: component.NewBase(component.Descriptor{
			Kind:       KindValue,
			IsOperator: true,
			Outputs:    []component.Port{{Name: "Value", Type: t, Default: v}},
		}),
		value: v,
	}, nil
}

// Start restores the constant, undoing any write made by a back transfer.
func (c *Value) Start(context.Context, component.Env, string) (component.Outcome, error) {
	c.SetValue("Value", c.value)
	return component.Completed(""), nil
}
