package service

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rendis/callgraph/pkg/schema"
)

// ParseDefinition decodes a YAML or JSON task document. The raw document is
// checked against the definition schema first, so unknown fields are
// reported instead of silently dropped. A structurally invalid document
// returns a nil definition and the issues.
func (s *Service) ParseDefinition(data []byte) (*schema.TaskDefinition, *schema.ValidationResult, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, schema.NewErrorf(schema.ErrCodeValidation, "parse task document: %v", err).WithCause(err)
	}
	if result := s.validator.ValidateDocument(doc); !result.Valid() {
		return nil, result, nil
	}

	var def schema.TaskDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, nil, schema.NewErrorf(schema.ErrCodeValidation, "decode task document: %v", err).WithCause(err)
	}
	return &def, &schema.ValidationResult{}, nil
}

// ReadDefinition reads and parses a task document from disk.
func (s *Service) ReadDefinition(path string) (*schema.TaskDefinition, *schema.ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read task document: %w", err)
	}
	return s.ParseDefinition(data)
}
