package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/pkg/schema"
)

func TestEmitAndWait(t *testing.T) {
	host := newFakeHost()
	ctx := context.Background()
	env := testEnv(host)

	wait := create(t, KindWait, map[string]any{"signal": "ready"})
	emit := create(t, KindEmit, map[string]any{"signal": "ready"})

	out, err := wait.Start(ctx, env, component.DefaultStartPort)
	require.NoError(t, err)
	require.Equal(t, component.OutcomePending, out.Kind)
	require.NotZero(t, out.Handle)
	assert.Equal(t, 1, host.bus.Subscribers("ready"))

	var seen []schema.Signal
	cancel := host.bus.Subscribe("ready", func(sig schema.Signal) { seen = append(seen, sig) })
	defer cancel()

	emit.SetValue("Payload", map[string]any{"k": "v"})
	done, err := emit.Start(ctx, env, component.DefaultStartPort)
	require.NoError(t, err)
	assert.Equal(t, component.Completed(resultEnd), done)

	result, ok := host.result(out.Handle)
	require.True(t, ok)
	assert.Equal(t, "Received", result)
	assert.Equal(t, map[string]any{"k": "v"}, wait.Value("Payload"))
	assert.Equal(t, 1, host.bus.Subscribers("ready"), "wait unsubscribed itself")

	require.Len(t, seen, 1)
	assert.Equal(t, "t1", seen[0].Source)
	assert.Equal(t, int64(1), seen[0].Step)
	assert.False(t, seen[0].EmittedAt.IsZero())
}

func TestWait_Cancel(t *testing.T) {
	host := newFakeHost()
	ctx := context.Background()
	env := testEnv(host)
	wait := create(t, KindWait, map[string]any{"signal": "ready"})

	out, err := wait.Start(ctx, env, component.DefaultStartPort)
	require.NoError(t, err)

	cancelled, err := wait.Start(ctx, env, portCancel)
	require.NoError(t, err)
	assert.Equal(t, component.Pending(0), cancelled, "the outstanding wait resolves through the host")
	result, ok := host.result(out.Handle)
	require.True(t, ok)
	assert.Equal(t, "Cancelled", result)
	assert.Zero(t, host.bus.Subscribers("ready"))

	idle, err := wait.Start(ctx, env, portCancel)
	require.NoError(t, err)
	assert.Equal(t, component.Completed("Cancelled"), idle)
}

func TestWait_StopUnsubscribes(t *testing.T) {
	host := newFakeHost()
	ctx := context.Background()
	env := testEnv(host)
	wait := create(t, KindWait, map[string]any{"signal": "ready"})

	out, err := wait.Start(ctx, env, component.DefaultStartPort)
	require.NoError(t, err)
	require.NoError(t, wait.Stop(ctx, env))
	assert.Zero(t, host.bus.Subscribers("ready"))

	host.bus.Emit(ctx, schema.Signal{Name: "ready"})
	_, ok := host.result(out.Handle)
	assert.False(t, ok)
}

func TestSignalNodes_RequireSignal(t *testing.T) {
	reg, err := NewRegistry(Config{})
	require.NoError(t, err)
	for _, kind := range []string{KindEmit, KindWait} {
		_, err := reg.New(kind, nil)
		assert.True(t, schema.HasCode(err, schema.ErrCodeValidation), kind)
	}
}

func TestSignalNodes_RequireHost(t *testing.T) {
	for _, kind := range []string{KindEmit, KindWait} {
		c := create(t, kind, map[string]any{"signal": "x"})
		_, err := c.Start(context.Background(), testEnv(nil), component.DefaultStartPort)
		assert.True(t, schema.HasCode(err, schema.ErrCodeComponentUnavailable), kind)
	}
}
