// Package diagram renders task graphs as Mermaid flowcharts or plain text.
package diagram

// NodeKind classifies a diagram node by the shape it is drawn with.
type NodeKind string

const (
	NodeKindComponent NodeKind = "component"
	NodeKindOperator  NodeKind = "operator"
	NodeKindBranch    NodeKind = "branch"
	NodeKindLoop      NodeKind = "loop"
	NodeKindWait      NodeKind = "wait"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Calls  []Edge
	Params []Edge
	// Levels groups non-operator node IDs by call distance from the entry
	// nodes. Nodes no entry reaches form the last level.
	Levels [][]string
}

// Node represents a single call node.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Entry  bool
	Status *StatusOverlay
}

// StatusOverlay carries runtime state for a node.
type StatusOverlay struct {
	State   string // from schema.NodeState
	Running int
	Pending int
}

// Edge connects two nodes. Label is the result name for execution edges
// and "Output→Input" for parameter edges.
type Edge struct {
	From  string
	To    string
	Label string
}
