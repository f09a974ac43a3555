package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/callgraph/pkg/schema"
)

const taskSchemaURL = "https://callgraph.dev/schemas/task.json"

// taskSchemaJSON describes the task definition document.
const taskSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://callgraph.dev/schemas/task.json",
  "type": "object",
  "required": ["name", "nodes"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "schedule": {"type": "string"},
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/node"}
    },
    "calls": {
      "type": "array",
      "items": {"$ref": "#/$defs/call"}
    },
    "parameters": {
      "type": "array",
      "items": {"$ref": "#/$defs/parameter"}
    },
    "metadata": {"type": "object"}
  },
  "additionalProperties": false,
  "$defs": {
    "id": {
      "type": "string",
      "pattern": "^[A-Za-z0-9_.-]+$"
    },
    "port": {"type": "string", "minLength": 1},
    "node": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": {"$ref": "#/$defs/id"},
        "kind": {"type": "string", "minLength": 1},
        "config": {"type": "object"},
        "inputs": {"type": "object"},
        "break_input": {"type": "boolean"},
        "break_output": {"type": "boolean"}
      },
      "additionalProperties": false
    },
    "call": {
      "type": "object",
      "required": ["from", "result", "to"],
      "properties": {
        "from": {"$ref": "#/$defs/id"},
        "result": {"$ref": "#/$defs/port"},
        "to": {"$ref": "#/$defs/id"},
        "port": {"type": "string"}
      },
      "additionalProperties": false
    },
    "parameter": {
      "type": "object",
      "required": ["from", "output", "to", "input"],
      "properties": {
        "from": {"$ref": "#/$defs/id"},
        "output": {"$ref": "#/$defs/port"},
        "to": {"$ref": "#/$defs/id"},
        "input": {"$ref": "#/$defs/port"}
      },
      "additionalProperties": false
    }
  }
}`

// violation is one leaf error of a schema validation.
type violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// JSONSchemaValidator checks definitions against the task JSON Schema
// (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	taskSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the task schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(taskSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal task schema: %w", err)
	}
	if err := c.AddResource(taskSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add task schema resource: %w", err)
	}
	compiled, err := c.Compile(taskSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile task schema: %w", err)
	}
	return &JSONSchemaValidator{taskSchema: compiled}, nil
}

// ValidateDefinition validates a typed definition.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.TaskDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "task definition is nil")
	}
	return v.ValidateDocument(def)
}

// ValidateDocument validates any value that encodes to a definition
// document, such as the generic result of decoding YAML.
func (v *JSONSchemaValidator) ValidateDocument(doc any) error {
	value, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize task definition").WithCause(err)
	}
	if err := v.taskSchema.Validate(value); err != nil {
		return toGraphError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, as the schema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func toGraphError(err error) *schema.GraphError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0].Path+": "+violations[0].Message).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

// collectViolations walks the error tree and keeps the leaves.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []violation{{Path: loc, Message: verr.Error()}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
