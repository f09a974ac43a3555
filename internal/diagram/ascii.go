package diagram

import (
	"fmt"
	"strings"
)

// stateTag returns a short ASCII indicator for a node state.
func stateTag(status *StatusOverlay) string {
	if status == nil {
		return ""
	}
	switch status.State {
	case "started":
		if status.Running > 1 {
			return fmt.Sprintf("[RUN x%d]", status.Running)
		}
		return "[RUN]"
	case "waiting_for_start":
		return fmt.Sprintf("[QUEUED %d]", status.Pending)
	case "break_start", "break_end":
		return "[BREAK]"
	case "freeze_by_break":
		return "[FROZEN]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text diagram: one row of boxes
// per level, then the operators and the execution and parameter edges.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			if node := findNode(model.Nodes, nodeID); node != nil {
				boxes = append(boxes, makeBox(node))
			}
		}
		renderBoxRow(&b, boxes)
		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	var operators []*Node
	for _, node := range model.Nodes {
		if node.Kind == NodeKindOperator {
			operators = append(operators, node)
		}
	}
	if len(operators) > 0 {
		b.WriteString("\n--- operators ---\n")
		for _, node := range operators {
			fmt.Fprintf(&b, "  %s (%s)\n", node.ID, secondLine(node.Label))
		}
	}
	renderEdges(&b, "calls", "─→", model.Calls)
	renderEdges(&b, "parameters", "┄→", model.Params)

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := strings.Split(node.Label, "\n")
	if node.Entry {
		contentLines[0] = "> " + contentLines[0]
	}
	if tag := stateTag(node.Status); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		maxLen = max(maxLen, len([]rune(line)))
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len([]rune(content)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// secondLine returns the second line of a label, or "".
func secondLine(s string) string {
	if _, rest, ok := strings.Cut(s, "\n"); ok {
		first, _, _ := strings.Cut(rest, "\n")
		return first
	}
	return ""
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		maxHeight = max(maxHeight, len(box.lines))
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

func renderEdges(b *strings.Builder, title, arrow string, edges []Edge) {
	if len(edges) == 0 {
		return
	}
	fmt.Fprintf(b, "\n--- %s ---\n", title)
	for _, e := range edges {
		fmt.Fprintf(b, "  %s %s %s  [%s]\n", e.From, arrow, e.To, e.Label)
	}
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
