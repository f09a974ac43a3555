package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/pkg/schema"
)

// transferPair builds src.Out(srcType) and dst.In(dstType) nodes.
func transferPair(t *testing.T, srcType, dstType convert.Type, hooks Hooks) (*Task, *probe, *probe) {
	t.Helper()
	task := NewTask(WithHooks(hooks))
	src := addProbe(t, task, "src", component.Descriptor{
		Kind:    "src",
		Outputs: []component.Port{port("Out", srcType)},
	})
	dst := addProbe(t, task, "dst", workerDesc("worker", port("In", dstType)))
	return task, src, dst
}

func TestTransferParameter(t *testing.T) {
	cases := []struct {
		name    string
		src     convert.Type
		dst     convert.Type
		value   any
		initial any
		want    any
		written bool
	}{
		{"exact int", convert.Int, convert.Int, 42, 0, 42, true},
		{"exact map", convert.Map, convert.Map, map[string]any{"k": 1}, map[string]any{}, map[string]any{"k": 1}, true},
		{"into any", convert.Time, convert.Any, time.Unix(10, 0), nil, time.Unix(10, 0), true},
		{"direct string to int", convert.String, convert.Int, "42", 0, 42, true},
		{"direct float to int", convert.Float, convert.Int, 3.7, 0, 3, true},
		{"direct duration to float", convert.Duration, convert.Float, 1500 * time.Millisecond, 0.0, 1.5, true},
		{"back string to duration", convert.String, convert.Duration, "1500ms", time.Duration(0), 1500 * time.Millisecond, true},
		{"failed conversion falls back to zero", convert.String, convert.Int, "abc", 7, 0, true},
		{"not assignable leaves input untouched", convert.List, convert.Int, []any{1}, 7, 7, false},
		{"bool to duration not assignable", convert.Bool, convert.Duration, true, time.Second, time.Second, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got *TransferEvent
			task, src, dst := transferPair(t, tc.src, tc.dst, Hooks{
				OnTransfer: func(_ context.Context, e *TransferEvent) { got = e },
			})
			src.SetValue("Out", tc.value)
			dst.SetValue("In", tc.initial)

			require.NoError(t, task.TransferParameter(context.Background(), "src", "Out", "dst", "In", 1))
			assert.Equal(t, tc.want, dst.Value("In"))
			require.NotNil(t, got)
			assert.Equal(t, tc.written, got.Written)
			assert.Equal(t, convert.CanBeAssignedTo(tc.src, tc.dst), got.Mode)
		})
	}
}

func TestTransferParameter_ReportsConversionError(t *testing.T) {
	var got *TransferEvent
	task, src, _ := transferPair(t, convert.String, convert.Int, Hooks{
		OnTransfer: func(_ context.Context, e *TransferEvent) { got = e },
	})
	src.SetValue("Out", "abc")

	require.NoError(t, task.TransferParameter(context.Background(), "src", "Out", "dst", "In", 1))
	require.NotNil(t, got)
	assert.Error(t, got.Err)
	assert.Equal(t, 0, got.Value)
}

func TestTransferParameter_UnknownPorts(t *testing.T) {
	task, _, _ := transferPair(t, convert.Int, convert.Int, Hooks{})
	ctx := context.Background()

	err := task.TransferParameter(ctx, "src", "Nope", "dst", "In", 1)
	assert.True(t, schema.HasCode(err, schema.ErrCodePortNotFound))
	err = task.TransferParameter(ctx, "src", "Out", "dst", "Nope", 1)
	assert.True(t, schema.HasCode(err, schema.ErrCodePortNotFound))
	err = task.TransferParameter(ctx, "ghost", "Out", "dst", "In", 1)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestTransferParameters_UsesStoredMode(t *testing.T) {
	task, src, dst := transferPair(t, convert.String, convert.Int, Hooks{})
	_, err := task.ConnectParameter("src", "Out", "dst", "In")
	require.NoError(t, err)

	src.SetValue("Out", "12")
	node(t, task, "src").TransferParameters(context.Background(), node(t, task, "dst"), 1)
	assert.Equal(t, 12, dst.Value("In"))
}

func TestResetParameter(t *testing.T) {
	task := NewTask()
	p := addProbe(t, task, "a", workerDesc("worker",
		component.Port{Name: "WithDefault", Type: convert.Int, Default: 5},
		port("Plain", convert.String),
	))
	n := node(t, task, "a")

	p.SetValue("WithDefault", 9)
	p.SetValue("Plain", "x")
	require.NoError(t, n.ResetParameter("WithDefault"))
	require.NoError(t, n.ResetParameter("Plain"))
	assert.Equal(t, 5, p.Value("WithDefault"))
	assert.Equal(t, "", p.Value("Plain"))

	// After an execution the pre-execution snapshot wins over the default.
	p.SetValue("WithDefault", 11)
	p.onStart = pendingForever
	require.NoError(t, n.Start(context.Background(), component.DefaultStartPort, 1))
	p.SetValue("WithDefault", 99)
	require.NoError(t, n.ResetParameter("WithDefault"))
	assert.Equal(t, 11, p.Value("WithDefault"))

	err := n.ResetParameter("Nope")
	assert.True(t, schema.HasCode(err, schema.ErrCodePortNotFound))
}

func TestPropagation_TransfersIntoRunningTarget(t *testing.T) {
	task := NewTask()
	ctx := context.Background()

	src := addProbe(t, task, "src", component.Descriptor{
		Kind:    "src",
		Outputs: []component.Port{port("Out", convert.Int)},
		Results: []string{"Done"},
	})
	desc := workerDesc("acc", port("In", convert.Int))
	desc.AdditionalStartPorts = []string{"Add"}
	desc.Updatable = true
	acc := addProbe(t, task, "acc", desc)
	var added []any
	acc.onStart = func(p *probe, _ component.Env, port string) (component.Outcome, error) {
		if port == "Add" {
			added = append(added, p.Value("In"))
		}
		return component.Pending(0), nil
	}
	_, err := task.ConnectParameter("src", "Out", "acc", "In")
	require.NoError(t, err)
	require.NoError(t, task.ConnectCall("src", "Done", "acc", "Add"))

	n := node(t, task, "acc")
	require.NoError(t, n.Start(ctx, component.DefaultStartPort, 1))

	src.SetValue("Out", 4)
	require.NoError(t, node(t, task, "src").Start(ctx, component.DefaultStartPort, 2))
	src.SetValue("Out", 6)
	require.NoError(t, node(t, task, "src").Start(ctx, component.DefaultStartPort, 3))

	assert.Equal(t, []any{4, 6}, added)
}
