package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", TaskID(ctx))
	assert.Equal(t, "", NodeID(ctx))
	_, ok := Step(ctx)
	assert.False(t, ok)

	ctx = WithIDs(ctx, "task-1", "node-a", 42)

	assert.Equal(t, "task-1", TaskID(ctx))
	assert.Equal(t, "node-a", NodeID(ctx))
	step, ok := Step(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(42), step)
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithIDs(context.Background(), "task-abc", "node-x", 7)
	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "task_id=task-abc")
	assert.Contains(t, output, "node_id=node-x")
	assert.Contains(t, output, "step=7")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithTaskID(context.Background(), "task-only")
	LogWith(ctx, logger).Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "task_id=task-only")
	assert.NotContains(t, output, "node_id")
	assert.NotContains(t, output, "step=")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithIDs(context.Background(), "task-auto", "node-auto", 3)
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"task_id":"task-auto"`)
	assert.Contains(t, output, `"node_id":"node-auto"`)
	assert.Contains(t, output, `"step":3`)
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "task_id")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewCorrelationHandler(inner)
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "engine")}))

	logger.InfoContext(WithTaskID(context.Background(), "task-attr"), "with attrs")

	output := buf.String()
	assert.Contains(t, output, `"task_id":"task-attr"`)
	assert.Contains(t, output, `"component":"engine"`)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = New(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = New(&buf, "info", "xml")
	assert.Error(t, err)
}
