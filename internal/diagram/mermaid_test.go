package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMermaid(t *testing.T) {
	output := RenderMermaid(Build(blinkGraph()))

	assert.Contains(t, output, "graph TD")
	assert.Contains(t, output, "%% blink")

	assert.Contains(t, output, `loop[["loop<br/>loop"]]`)
	assert.Contains(t, output, `say["say<br/>log"]`)
	assert.Contains(t, output, `greeting{{"greeting<br/>value"}}`)

	assert.Contains(t, output, "loop -->|Iteration| say")
	assert.Contains(t, output, "loop -->|End| done")
	assert.Contains(t, output, "greeting -.->|Value→Message| say")

	assert.Contains(t, output, "class loop entry")
	assert.NotContains(t, output, "class greeting entry")
}

func TestRenderMermaidStates(t *testing.T) {
	output := RenderMermaid(Build(branchGraph()))

	assert.Contains(t, output, `check{"check<br/>branch"}`)
	assert.Contains(t, output, `wait_go(["wait-go<br/>wait"])`)
	assert.Contains(t, output, "check -->|False→Cancel| wait_go")

	assert.Contains(t, output, "class check started")
	assert.Contains(t, output, "class yes queued")
	assert.Contains(t, output, "class wait_go halted")
	assert.NotContains(t, output, "class lonely")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
}

func TestMermaidEscapeLabel(t *testing.T) {
	assert.Equal(t, "x<br/>'y' a/b", mermaidEscapeLabel("x\n\"y\" a|b"))
}
