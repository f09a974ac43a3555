package engine

import (
	"fmt"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/pkg/schema"
)

// BuildTask creates a task from a definition. Nodes are instantiated through
// reg in document order and seeded with their inputs; execution calls and
// parameter edges are then connected in document order, so entry nodes and
// propagation order follow the document.
func BuildTask(def *schema.TaskDefinition, reg *component.Registry, opts ...TaskOption) (*Task, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "task definition is nil")
	}
	if len(def.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "task has no nodes")
	}

	t := NewTask(append([]TaskOption{WithTaskName(def.Name)}, opts...)...)

	// First pass: instantiate every node and check for duplicates.
	for i := range def.Nodes {
		nd := &def.Nodes[i]
		if nd.ID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, fmt.Sprintf("node at index %d has empty id", i))
		}
		c, err := reg.New(nd.Kind, nd.Config)
		if err != nil {
			return nil, withNode(err, nd.ID)
		}
		n, err := t.AddNode(NodeID(nd.ID), c)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node id: %s", nd.ID).WithCause(err)
		}
		n.SetBreakInput(nd.BreakInput)
		n.SetBreakOutput(nd.BreakOutput)

		if err := applyInputs(n, nd.Inputs); err != nil {
			return nil, err
		}
	}

	// Second pass: execution edges.
	for i, cd := range def.Calls {
		if err := t.ConnectCall(NodeID(cd.From), cd.Result, NodeID(cd.To), cd.Port); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "calls[%d]: %s", i, err.Error()).WithCause(err)
		}
	}

	// Third pass: parameter edges.
	for i, pd := range def.Parameters {
		if _, err := t.ConnectParameter(NodeID(pd.From), pd.Output, NodeID(pd.To), pd.Input); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "parameters[%d]: %s", i, err.Error()).WithCause(err)
		}
	}

	return t, nil
}

// applyInputs seeds input values, coerced to each port's declared type.
func applyInputs(n *CallNode, inputs map[string]any) error {
	for name, raw := range inputs {
		port, ok := n.desc.Input(name)
		if !ok {
			return schema.NewErrorf(schema.ErrCodePortNotFound, "node %s has no input %q", n.id, name).
				WithNode(string(n.id))
		}
		v, err := convert.Coerce(raw, port.Type)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "node %s input %q: %s", n.id, name, err.Error()).
				WithNode(string(n.id)).WithCause(err)
		}
		n.comp.SetValue(name, v)
		n.defaultValues[name] = v
	}
	return nil
}

func withNode(err error, id string) error {
	if ge, ok := err.(*schema.GraphError); ok {
		return ge.WithNode(id)
	}
	return err
}
