package service

import (
	"github.com/rendis/callgraph/internal/diagram"
	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/pkg/schema"
)

// Diagram formats.
const (
	FormatMermaid = "mermaid"
	FormatASCII   = "ascii"
)

// Graph describes the nodes and edges of a task.
func (s *Service) Graph(id string) (engine.TaskGraph, error) {
	return s.manager.Graph(id)
}

// Diagram renders a task with its current node states. An empty format
// means Mermaid.
func (s *Service) Diagram(id, format string) (string, error) {
	g, err := s.manager.Graph(id)
	if err != nil {
		return "", err
	}
	model := diagram.Build(g)
	switch format {
	case "", FormatMermaid:
		return diagram.RenderMermaid(model), nil
	case FormatASCII:
		return diagram.RenderASCII(model), nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format)
	}
}
