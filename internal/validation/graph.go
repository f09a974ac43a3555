package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/pkg/schema"
)

// validateGraph analyses the edges of a semantically valid definition:
// the task must have an entry node, every node should be started or read
// from a node that is, and operator cycles are reported because evaluation
// cuts them. Nodes without a descriptor are treated as non-operators.
func validateGraph(def *schema.TaskDefinition, descs map[string]component.Descriptor) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	isOperator := func(id string) bool { return descs[id].IsOperator }
	called := make(map[string]bool)
	calls := make(map[string][]string)
	for _, c := range def.Calls {
		called[c.To] = true
		calls[c.From] = append(calls[c.From], c.To)
	}
	// sources[target] lists the nodes a target pulls values from.
	sources := make(map[string][]string)
	for _, p := range def.Parameters {
		sources[p.To] = append(sources[p.To], p.From)
	}

	var entries []string
	for _, n := range def.Nodes {
		if !called[n.ID] && !isOperator(n.ID) {
			entries = append(entries, n.ID)
		}
	}
	if len(entries) == 0 {
		result.AddError("nodes", schema.ErrCodeValidation,
			"task has no entry node: every non-operator node is the target of a call")
		return result
	}
	if len(entries) > 1 {
		result.AddWarning("nodes", schema.ErrCodeValidation,
			fmt.Sprintf("task has %d entry nodes; only %q starts the task", len(entries), entries[0]))
	}

	// Reachability: BFS from the first entry through calls, then through the
	// parameter sources of every reached node.
	reachable := map[string]bool{entries[0]: true}
	queue := []string{entries[0]}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		next := append(append([]string(nil), calls[id]...), sources[id]...)
		for _, n := range next {
			if !reachable[n] {
				reachable[n] = true
				queue = append(queue, n)
			}
		}
	}
	for i, n := range def.Nodes {
		if !reachable[n.ID] {
			result.AddNodeWarning(n.ID, fmt.Sprintf("nodes[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is never started or read from the entry node", n.ID))
		}
	}

	if cyclic := operatorCycles(def, isOperator); len(cyclic) > 0 {
		result.AddWarning("parameters", schema.ErrCodeValidation,
			fmt.Sprintf("operators %v are on or behind a parameter cycle; evaluation stops at the first repeated node", cyclic))
	}
	return result
}

// operatorCycles runs Kahn's algorithm over parameter edges between
// operators and returns the operators it cannot order, sorted.
func operatorCycles(def *schema.TaskDefinition, isOperator func(string) bool) []string {
	inDegree := make(map[string]int)
	out := make(map[string][]string)
	for _, n := range def.Nodes {
		if isOperator(n.ID) {
			inDegree[n.ID] = 0
		}
	}
	seen := make(map[[2]string]bool)
	for _, p := range def.Parameters {
		if !isOperator(p.From) || !isOperator(p.To) {
			continue
		}
		edge := [2]string{p.From, p.To}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		out[p.From] = append(out[p.From], p.To)
		inDegree[p.To]++
	}

	queue := make([]string, 0, len(inDegree))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		delete(inDegree, id)
		for _, next := range out[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(inDegree) == 0 {
		return nil
	}

	left := make([]string, 0, len(inDegree))
	for id := range inDegree {
		left = append(left, id)
	}
	sort.Strings(left)
	return left
}
