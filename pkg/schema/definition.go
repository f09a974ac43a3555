package schema

// TaskDefinition is the JSON/YAML document a task graph is built from.
// It is the in-memory counterpart of a saved graph: nodes first, then the
// execution and parameter edges that connect them.
type TaskDefinition struct {
	Name       string                `json:"name" yaml:"name"`
	Schedule   string                `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Nodes      []NodeDefinition      `json:"nodes" yaml:"nodes"`
	Calls      []CallDefinition      `json:"calls,omitempty" yaml:"calls,omitempty"`
	Parameters []ParameterDefinition `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Metadata   map[string]any        `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NodeDefinition declares one component instance in the graph.
type NodeDefinition struct {
	ID          string         `json:"id" yaml:"id"`
	Kind        string         `json:"kind" yaml:"kind"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	BreakInput  bool           `json:"break_input,omitempty" yaml:"break_input,omitempty"`
	BreakOutput bool           `json:"break_output,omitempty" yaml:"break_output,omitempty"`
}

// CallDefinition is an execution edge: when From returns on Result, start To on Port.
type CallDefinition struct {
	From   string `json:"from" yaml:"from"`
	Result string `json:"result" yaml:"result"`
	To     string `json:"to" yaml:"to"`
	Port   string `json:"port,omitempty" yaml:"port,omitempty"`
}

// ParameterDefinition is a parameter edge: copy From.Output into To.Input.
type ParameterDefinition struct {
	From   string `json:"from" yaml:"from"`
	Output string `json:"output" yaml:"output"`
	To     string `json:"to" yaml:"to"`
	Input  string `json:"input" yaml:"input"`
}
