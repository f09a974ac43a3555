package schema

import (
	"fmt"
	"slices"
)

// ValidationSeverity separates issues that block a load from advisory ones.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue locates one problem in a task definition. Path is the
// document location (nodes[2].inputs.Count, calls[0].port, /nodes/1 for
// schema errors). Node names the node the issue is about, when there is one.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Node     string             `json:"node,omitempty"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult collects the issues of every validation stage.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether the definition can be loaded. Warnings do not count.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError records a document-level error.
func (r *ValidationResult) AddError(path, code, message string) {
	r.AddNodeError("", path, code, message)
}

// AddWarning records a document-level warning.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.AddNodeWarning("", path, code, message)
}

// AddNodeError records an error about node.
func (r *ValidationResult) AddNodeError(node, path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Node: node, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddNodeWarning records a warning about node.
func (r *ValidationResult) AddNodeWarning(node, path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Node: node, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// Merge appends the issues of other.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ForNode returns the errors and warnings recorded against node, errors first.
func (r *ValidationResult) ForNode(node string) []ValidationIssue {
	var out []ValidationIssue
	for _, list := range [][]ValidationIssue{r.Errors, r.Warnings} {
		for _, issue := range list {
			if issue.Node == node {
				out = append(out, issue)
			}
		}
	}
	return out
}

// InvalidNodes lists the nodes that carry at least one error, in the order
// their first error was recorded.
func (r *ValidationResult) InvalidNodes() []string {
	var out []string
	for _, issue := range r.Errors {
		if issue.Node != "" && !slices.Contains(out, issue.Node) {
			out = append(out, issue.Node)
		}
	}
	return out
}

// ToError returns nil for a valid result. Otherwise it returns a
// VALIDATION_ERROR carrying every issue; a lone node error is attributed to
// its node.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	details := map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
	}
	if nodes := r.InvalidNodes(); len(nodes) > 0 {
		details["nodes"] = nodes
	}
	err := NewError(ErrCodeValidation, msg).WithDetails(details)
	if len(r.Errors) == 1 && r.Errors[0].Node != "" {
		err = err.WithNode(r.Errors[0].Node)
	}
	return err
}
