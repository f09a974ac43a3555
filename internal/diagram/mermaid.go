package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Execution edges are solid, parameter edges dotted.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}
	for _, edge := range model.Calls {
		fmt.Fprintf(&b, "    %s -->%s %s\n", mermaidSafeID(edge.From), mermaidEdgeLabel(edge.Label), mermaidSafeID(edge.To))
	}
	for _, edge := range model.Params {
		fmt.Fprintf(&b, "    %s -.->%s %s\n", mermaidSafeID(edge.From), mermaidEdgeLabel(edge.Label), mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef entry stroke:#1a5276,stroke-width:3px\n")
	b.WriteString("    classDef started fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef queued fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef halted fill:#b7791a,stroke:#8a5c14,color:#fff\n")

	for _, node := range model.Nodes {
		if node.Entry {
			fmt.Fprintf(&b, "    class %s entry\n", mermaidSafeID(node.ID))
		}
		if node.Status != nil {
			if cls := mermaidStateClass(node.Status.State); cls != "" {
				fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
			}
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(node.Label)

	switch node.Kind {
	case NodeKindBranch:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindOperator:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindWait:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindLoop:
		return fmt.Sprintf("%s[[%q]]", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

func mermaidEdgeLabel(label string) string {
	if label == "" {
		return ""
	}
	return "|" + mermaidEscapeLabel(label) + "|"
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots and dashes with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel turns newlines into Mermaid line breaks and drops
// characters that end a label.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer("\n", "<br/>", "\"", "'", "|", "/")
	return r.Replace(s)
}

// mermaidStateClass maps a node state to a Mermaid class name.
func mermaidStateClass(state string) string {
	switch state {
	case "started":
		return "started"
	case "waiting_for_start":
		return "queued"
	case "break_start", "break_end", "freeze_by_break":
		return "halted"
	default:
		return ""
	}
}
