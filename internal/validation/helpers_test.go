package validation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/nodes"
	"github.com/rendis/callgraph/pkg/schema"
)

func testRegistry(t *testing.T) *component.Registry {
	t.Helper()
	reg, err := nodes.NewRegistry(nodes.Config{})
	require.NoError(t, err)
	return reg
}

func newValidator(t *testing.T) *TaskValidator {
	t.Helper()
	v, err := NewTaskValidator(testRegistry(t))
	require.NoError(t, err)
	return v
}

// validDef is a small task: a delay feeding a log, with a constant message.
func validDef() *schema.TaskDefinition {
	return &schema.TaskDefinition{
		Name: "blink",
		Nodes: []schema.NodeDefinition{
			{ID: "wait", Kind: nodes.KindDelay, Inputs: map[string]any{"Duration": "1s"}},
			{ID: "text", Kind: nodes.KindValue, Config: map[string]any{"type": "string", "value": "hi"}},
			{ID: "print", Kind: nodes.KindLog},
		},
		Calls: []schema.CallDefinition{
			{From: "wait", Result: "End", To: "print"},
		},
		Parameters: []schema.ParameterDefinition{
			{From: "text", Output: "Value", To: "print", Input: "Message"},
		},
	}
}

func errorCodes(r *schema.ValidationResult) []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Code
	}
	return out
}

func paths(issues []schema.ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, e := range issues {
		out[i] = e.Path
	}
	return out
}

func issueNodes(issues []schema.ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, e := range issues {
		out[i] = e.Node
	}
	return out
}
