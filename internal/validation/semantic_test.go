package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/internal/nodes"
	"github.com/rendis/callgraph/pkg/schema"
)

func TestSemantic_Valid(t *testing.T) {
	result, descs := validateSemantic(validDef(), testRegistry(t))
	assert.True(t, result.Valid(), "%v", result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Len(t, descs, 3)
	assert.True(t, descs["text"].IsOperator)
}

func TestSemantic_Nodes(t *testing.T) {
	def := validDef()
	def.Nodes = append(def.Nodes,
		schema.NodeDefinition{ID: "wait", Kind: nodes.KindDelay},
		schema.NodeDefinition{ID: "ghost", Kind: "teleport"},
		schema.NodeDefinition{ID: "broken", Kind: nodes.KindExpr},
		schema.NodeDefinition{ID: "typo", Kind: nodes.KindDelay, Inputs: map[string]any{"Duraton": "1s"}},
		schema.NodeDefinition{ID: "bad", Kind: nodes.KindDelay, Inputs: map[string]any{"Duration": "soon"}},
	)

	result, _ := validateSemantic(def, testRegistry(t))
	assert.Equal(t, []string{
		schema.ErrCodeConflict,
		schema.ErrCodeComponentUnavailable,
		schema.ErrCodeValidation,
		schema.ErrCodePortNotFound,
		schema.ErrCodeValidation,
	}, errorCodes(result))
	assert.Equal(t, []string{
		"nodes[3].id",
		"nodes[4].kind",
		"nodes[5].config",
		"nodes[6].inputs.Duraton",
		"nodes[7].inputs.Duration",
	}, paths(result.Errors))
	assert.Equal(t, []string{"wait", "ghost", "broken", "typo", "bad"}, result.InvalidNodes())
	require.Len(t, result.ForNode("typo"), 1)
	assert.Equal(t, "nodes[6].inputs.Duraton", result.ForNode("typo")[0].Path)
}

func TestSemantic_Calls(t *testing.T) {
	def := validDef()
	def.Calls = append(def.Calls,
		schema.CallDefinition{From: "wait", Result: "Finished", To: "print"},
		schema.CallDefinition{From: "wait", Result: "End", To: "text"},
		schema.CallDefinition{From: "wait", Result: "End", To: "print", Port: "Cancel"},
		schema.CallDefinition{From: "nobody", Result: "End", To: "print"},
		schema.CallDefinition{From: "wait", Result: "Cancelled", To: "wait", Port: "Cancel"},
	)

	result, _ := validateSemantic(def, testRegistry(t))
	assert.Equal(t, []string{"calls[1].result", "calls[2].to", "calls[3].port", "calls[4].from"}, paths(result.Errors))
	assert.Equal(t, []string{
		schema.ErrCodePortNotFound,
		schema.ErrCodeValidation,
		schema.ErrCodePortNotFound,
		schema.ErrCodeNotFound,
	}, errorCodes(result))
	assert.Equal(t, []string{"wait", "text", "print", ""}, issueNodes(result.Errors),
		"a dangling reference has no node to attribute")
}

func TestSemantic_Parameters(t *testing.T) {
	def := validDef()
	def.Nodes = append(def.Nodes,
		schema.NodeDefinition{ID: "items", Kind: nodes.KindValue, Config: map[string]any{"type": "list"}},
	)
	def.Parameters = append(def.Parameters,
		schema.ParameterDefinition{From: "text", Output: "Missing", To: "print", Input: "Message"},
		schema.ParameterDefinition{From: "text", Output: "Value", To: "print", Input: "Missing"},
		schema.ParameterDefinition{From: "text", Output: "Value", To: "ghost", Input: "Message"},
		schema.ParameterDefinition{From: "items", Output: "Value", To: "wait", Input: "Duration"},
		schema.ParameterDefinition{From: "items", Output: "Value", To: "print", Input: "Message"},
	)

	result, _ := validateSemantic(def, testRegistry(t))
	assert.Equal(t, []string{"parameters[1].output", "parameters[2].input", "parameters[3].to"}, paths(result.Errors))
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, "parameters[4]", result.Warnings[0].Path)
	assert.Contains(t, result.Warnings[0].Message, "never reaches")
	assert.Equal(t, "parameters[5]", result.Warnings[1].Path)
	assert.Contains(t, result.Warnings[1].Message, "print.Message")
	assert.Equal(t, []string{"text", "print", ""}, issueNodes(result.Errors))
	assert.Equal(t, []string{"wait", "print"}, issueNodes(result.Warnings))
}

func TestSemantic_Schedule(t *testing.T) {
	def := validDef()
	def.Schedule = "*/5 * * * *"
	result, _ := validateSemantic(def, testRegistry(t))
	assert.True(t, result.Valid())

	def.Schedule = "every tuesday"
	result, _ = validateSemantic(def, testRegistry(t))
	assert.Equal(t, []string{"schedule"}, paths(result.Errors))
}

func TestSemantic_OperatorBreakpointWarns(t *testing.T) {
	def := validDef()
	def.Nodes[1].BreakInput = true
	result, _ := validateSemantic(def, testRegistry(t))
	assert.True(t, result.Valid())
	assert.Equal(t, []string{"nodes[1]"}, paths(result.Warnings))
}

func TestSemantic_NilLookupChecksReferencesOnly(t *testing.T) {
	def := validDef()
	def.Nodes[0].Kind = "unknown"
	def.Calls = append(def.Calls, schema.CallDefinition{From: "wait", Result: "Nope", To: "missing"})

	result, descs := validateSemantic(def, nil)
	assert.Empty(t, descs)
	assert.Equal(t, []string{"calls[1].to"}, paths(result.Errors))
}
