package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/internal/nodes"
	"github.com/rendis/callgraph/internal/service"
)

func newTestServer(t *testing.T) *CallgraphServer {
	t.Helper()
	m := engine.NewManager()
	t.Cleanup(func() { m.Close(context.Background()) })

	reg, err := nodes.NewRegistry(nodes.Config{})
	require.NoError(t, err)
	svc, err := service.New(service.Deps{Manager: m, Registry: reg})
	require.NoError(t, err)

	return NewCallgraphServer(CallgraphServerDeps{Service: svc})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func waiterDefinition() map[string]any {
	return map[string]any{
		"name": "waiter",
		"nodes": []any{
			map[string]any{"id": "w", "kind": nodes.KindWait, "config": map[string]any{"signal": "go"}},
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func loadWaiter(t *testing.T, s *CallgraphServer) string {
	t.Helper()
	result, err := s.handleLoad(context.Background(), buildRequest("callgraph.load", map[string]any{
		"definition": waiterDefinition(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	return decodeResult(t, result)["task_id"].(string)
}

// --- callgraph.load ---

func TestHandleLoad_Definition(t *testing.T) {
	s := newTestServer(t)
	id := loadWaiter(t, s)
	assert.NotEmpty(t, id)

	info, err := s.svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, "waiter", info.Name)
}

func TestHandleLoad_DocumentAndStart(t *testing.T) {
	s := newTestServer(t)
	doc := "name: doc\nnodes:\n  - id: w\n    kind: wait\n    config: {signal: go}\n"

	result, err := s.handleLoad(context.Background(), buildRequest("callgraph.load", map[string]any{
		"document": doc,
		"start":    true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	out := decodeResult(t, result)
	assert.Equal(t, "doc", out["name"])
	assert.Equal(t, "running", out["status"])
}

func TestHandleLoad_Missing(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleLoad(context.Background(), buildRequest("callgraph.load", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "definition or document is required")
}

func TestHandleLoad_InvalidDocument(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleLoad(context.Background(), buildRequest("callgraph.load", map[string]any{
		"document": "name: bad\nnodes:\n  - id: a\n    kind: log\n    colour: red\n",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "task definition is invalid")
	assert.Contains(t, resultText(t, result), "/nodes/0")
}

func TestHandleLoad_SemanticErrors(t *testing.T) {
	s := newTestServer(t)
	def := waiterDefinition()
	def["calls"] = []any{map[string]any{"from": "w", "result": "End", "to": "ghost"}}

	result, err := s.handleLoad(context.Background(), buildRequest("callgraph.load", map[string]any{"definition": def}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "ghost")
	assert.Empty(t, s.svc.List())
}

// --- callgraph.start ---

func TestHandleStart(t *testing.T) {
	s := newTestServer(t)
	id := loadWaiter(t, s)

	result, err := s.handleStart(context.Background(), buildRequest("callgraph.start", map[string]any{"task_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	assert.Equal(t, "running", decodeResult(t, result)["status"])
}

func TestHandleStart_Errors(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleStart(context.Background(), buildRequest("callgraph.start", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleStart(context.Background(), buildRequest("callgraph.start", map[string]any{"task_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "start failed")
}

// --- callgraph.control ---

func TestHandleControl(t *testing.T) {
	s := newTestServer(t)
	id := loadWaiter(t, s)
	_, err := s.svc.Start(context.Background(), id)
	require.NoError(t, err)

	result, err := s.handleControl(context.Background(), buildRequest("callgraph.control", map[string]any{
		"task_id": id,
		"action":  "suspend",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	out := decodeResult(t, result)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "suspended", out["status"])

	result, err = s.handleControl(context.Background(), buildRequest("callgraph.control", map[string]any{
		"task_id": id,
		"action":  "stop",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	assert.Equal(t, "stopped", decodeResult(t, result)["status"])
}

func TestHandleControl_Errors(t *testing.T) {
	s := newTestServer(t)
	id := loadWaiter(t, s)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing task", map[string]any{"action": "stop"}},
		{"missing action", map[string]any{"task_id": id}},
		{"unknown action", map[string]any{"task_id": id, "action": "explode"}},
		{"continue without node", map[string]any{"task_id": id, "action": "continue"}},
		{"suspend idle task", map[string]any{"task_id": id, "action": "suspend"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleControl(context.Background(), buildRequest("callgraph.control", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

// --- callgraph.signal ---

func TestHandleSignal(t *testing.T) {
	s := newTestServer(t)
	id := loadWaiter(t, s)
	_, err := s.svc.Start(context.Background(), id)
	require.NoError(t, err)

	result, err := s.handleSignal(context.Background(), buildRequest("callgraph.signal", map[string]any{
		"name":    "go",
		"payload": map[string]any{"answer": 42},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	out := decodeResult(t, result)
	assert.Equal(t, "go", out["name"])
	assert.Equal(t, 1.0, out["delivered"])

	info, err := s.svc.Status(id)
	require.NoError(t, err)
	assert.Equal(t, "completed", string(info.Status))
}

func TestHandleSignal_MissingName(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleSignal(context.Background(), buildRequest("callgraph.signal", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- callgraph.status ---

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t)
	id := loadWaiter(t, s)

	result, err := s.handleStatus(context.Background(), buildRequest("callgraph.status", map[string]any{"task_id": id}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	out := decodeResult(t, result)
	assert.Equal(t, id, out["id"])
	assert.Equal(t, "idle", out["status"])
	assert.Len(t, out["nodes"], 1)
}

func TestHandleStatus_List(t *testing.T) {
	s := newTestServer(t)
	loadWaiter(t, s)
	loadWaiter(t, s)

	result, err := s.handleStatus(context.Background(), buildRequest("callgraph.status", map[string]any{}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Len(t, decodeResult(t, result)["tasks"], 2)
}

func TestHandleStatus_NotFound(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleStatus(context.Background(), buildRequest("callgraph.status", map[string]any{"task_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCaptureSession_NoSession(t *testing.T) {
	s := newTestServer(t)
	s.captureSession(context.Background(), "t1")
	_, ok := s.sessions.SessionFor("t1")
	assert.False(t, ok)
}
