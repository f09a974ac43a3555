package diagram

import (
	"fmt"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/internal/nodes"
	"github.com/rendis/callgraph/pkg/schema"
)

// Build constructs a DiagramModel from a task graph. Nodes that have left
// the undefined state, or have starts queued, get a status overlay.
func Build(g engine.TaskGraph) *DiagramModel {
	model := &DiagramModel{Title: g.Name}
	if model.Title == "" {
		model.Title = g.ID
	}

	operators := make(map[string]bool)
	for _, info := range g.Nodes {
		n := &Node{
			ID:    string(info.ID),
			Label: fmt.Sprintf("%s\n%s", info.ID, info.Kind),
			Kind:  nodeKind(info),
			Entry: info.Entry && !info.Operator,
		}
		if info.State != schema.NodeStateUndefined || info.Running > 0 || len(info.Pending) > 0 {
			n.Status = &StatusOverlay{State: string(info.State), Running: info.Running, Pending: len(info.Pending)}
		}
		if info.Operator {
			operators[n.ID] = true
		}
		model.Nodes = append(model.Nodes, n)
	}

	for _, c := range g.Calls {
		label := c.Result
		if c.StartPort != "" && c.StartPort != component.DefaultStartPort {
			label += "→" + c.StartPort
		}
		model.Calls = append(model.Calls, Edge{From: string(c.Source), To: string(c.Target), Label: label})
	}
	for _, p := range g.Parameters {
		model.Params = append(model.Params, Edge{
			From:  string(p.Source),
			To:    string(p.Target),
			Label: p.Output + "→" + p.Input,
		})
	}

	model.Levels = buildLevels(model, operators)
	return model
}

// nodeKind maps a component kind to a shape.
func nodeKind(info engine.NodeInfo) NodeKind {
	if info.Operator {
		return NodeKindOperator
	}
	switch info.Kind {
	case nodes.KindBranch, nodes.KindFlipFlop:
		return NodeKindBranch
	case nodes.KindLoop:
		return NodeKindLoop
	case nodes.KindWait, nodes.KindDelay:
		return NodeKindWait
	default:
		return NodeKindComponent
	}
}

// buildLevels runs a breadth-first walk over execution edges from the
// entry nodes.
func buildLevels(model *DiagramModel, operators map[string]bool) [][]string {
	next := make(map[string][]string)
	for _, e := range model.Calls {
		next[e.From] = append(next[e.From], e.To)
	}

	seen := make(map[string]bool)
	var frontier []string
	for _, n := range model.Nodes {
		if n.Entry {
			frontier = append(frontier, n.ID)
			seen[n.ID] = true
		}
	}

	var levels [][]string
	for len(frontier) > 0 {
		levels = append(levels, frontier)
		var following []string
		for _, id := range frontier {
			for _, to := range next[id] {
				if !seen[to] && !operators[to] {
					seen[to] = true
					following = append(following, to)
				}
			}
		}
		frontier = following
	}

	var orphans []string
	for _, n := range model.Nodes {
		if !seen[n.ID] && !operators[n.ID] {
			orphans = append(orphans, n.ID)
		}
	}
	if len(orphans) > 0 {
		levels = append(levels, orphans)
	}
	return levels
}
