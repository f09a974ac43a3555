package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/pkg/schema"
)

func TestGoJQEngine_Evaluate(t *testing.T) {
	e := NewGoJQEngine()
	assert.Equal(t, "jq", e.Name())

	doc := map[string]any{
		"Items": []any{
			map[string]any{"name": "a", "n": 1},
			map[string]any{"name": "b", "n": 2},
		},
		"Count": 3,
	}

	tests := []struct {
		name string
		expr string
		want any
	}{
		{"identity field", ".Count", float64(3)},
		{"path", ".Items[1].name", "b"},
		{"map", "[.Items[].n] | add", float64(3)},
		{"select", `.Items[] | select(.n > 1) | .name`, "b"},
		{"multiple outputs", ".Items[].name", []any{"a", "b"}},
		{"no output", "empty", nil},
		{"object construction", "{total: .Count}", map[string]any{"total": float64(3)}},
		{"env is empty", "$ENV | length", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tt.expr, doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestGoJQEngine_EvaluateAll(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.EvaluateAll(context.Background(), ".A", map[string]any{"A": "x"})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, out)

	out, err = e.EvaluateAll(context.Background(), "empty", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGoJQEngine_Errors(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	err = e.Compile(".[")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	err = e.Compile("$undefined")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), `.A + 1`, map[string]any{"A": "x"})
	assert.True(t, schema.HasCode(err, schema.ErrCodeExecution))

	_, err = e.Evaluate(context.Background(), `error("boom")`, nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeExecution))
}

func TestNormalize(t *testing.T) {
	in := map[string]any{
		"i":    1,
		"i64":  int64(2),
		"f32":  float32(0.5),
		"list": []any{3, "x"},
		"strs": []string{"a"},
		"m":    map[string]string{"k": "v"},
		"nil":  nil,
	}
	want := map[string]any{
		"i":    float64(1),
		"i64":  float64(2),
		"f32":  float64(0.5),
		"list": []any{float64(3), "x"},
		"strs": []any{"a"},
		"m":    map[string]any{"k": "v"},
		"nil":  nil,
	}
	assert.Equal(t, want, Normalize(in))
	assert.Nil(t, Normalize(nil))
}
