// Package validation checks task definitions before they are built.
//
// Three stages run in order: structural (JSON Schema), semantic (kinds,
// ports and edges against the component registry) and graph analysis
// (entry nodes, reachability, operator cycles). Structural errors skip the
// later stages; semantic errors skip graph analysis.
package validation

import (
	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/pkg/schema"
)

// ComponentLookup creates components so their descriptors can be checked.
// *component.Registry satisfies it.
type ComponentLookup interface {
	Has(kind string) bool
	New(kind string, config map[string]any) (component.Component, error)
}

// TaskValidator runs the validation pipeline.
type TaskValidator struct {
	jsonSchema *JSONSchemaValidator
	lookup     ComponentLookup
}

// NewTaskValidator creates a TaskValidator. A nil lookup skips the checks
// that need component descriptors.
func NewTaskValidator(lookup ComponentLookup) (*TaskValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &TaskValidator{jsonSchema: jsv, lookup: lookup}, nil
}

// Validate runs every stage on a typed definition.
func (v *TaskValidator) Validate(def *schema.TaskDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "task definition is nil")
		return r
	}

	result := resultFromError(v.jsonSchema.ValidateDefinition(def))
	if !result.Valid() {
		return result
	}

	sem, descs := validateSemantic(def, v.lookup)
	result.Merge(sem)
	if result.Valid() {
		result.Merge(validateGraph(def, descs))
	}
	return result
}

// ValidateDocument checks a decoded JSON or YAML document against the
// definition schema. Unlike Validate it sees fields the typed definition
// would silently drop.
func (v *TaskValidator) ValidateDocument(doc any) *schema.ValidationResult {
	return resultFromError(v.jsonSchema.ValidateDocument(doc))
}

// ValidateDefinition returns the pipeline's errors as a single GraphError.
func (v *TaskValidator) ValidateDefinition(def *schema.TaskDefinition) error {
	return v.Validate(def).ToError()
}

// resultFromError spreads the violations of a structural error into
// individual issues.
func resultFromError(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	gErr, ok := err.(*schema.GraphError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := gErr.Details["violations"].([]violation); ok {
		for _, v := range violations {
			result.AddError(v.Path, schema.ErrCodeValidation, v.Message)
		}
		return result
	}
	result.AddError("/", gErr.Code, gErr.Message)
	return result
}
