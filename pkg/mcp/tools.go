package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/callgraph/pkg/schema"
)

// handleLoad validates and registers a task definition.
func (s *CallgraphServer) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var raw []byte
	if def, ok := req.GetArguments()["definition"]; ok && def != nil {
		data, err := json.Marshal(def)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("definition is not JSON: %v", err)), nil
		}
		raw = data
	} else if doc := req.GetString("document", ""); doc != "" {
		raw = []byte(doc)
	} else {
		return mcp.NewToolResultError("definition or document is required"), nil
	}

	def, issues, err := s.svc.ParseDefinition(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if def == nil {
		return errorResult("task definition is invalid", map[string]any{"errors": issues.Errors})
	}

	if result := s.svc.Validate(def); !result.Valid() {
		return errorResult("task definition is invalid", map[string]any{"errors": result.Errors, "warnings": result.Warnings})
	}
	loaded, err := s.svc.Load(ctx, def)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	s.captureSession(ctx, loaded.TaskID)

	out := map[string]any{
		"task_id":   loaded.TaskID,
		"name":      loaded.Name,
		"scheduled": loaded.Scheduled,
		"warnings":  loaded.Warnings,
	}
	if req.GetBool("start", false) {
		info, err := s.svc.Start(ctx, loaded.TaskID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("task %s loaded but start failed: %v", loaded.TaskID, err)), nil
		}
		out["status"] = info.Status
		out["step"] = info.Step
	}
	return marshalResult(out)
}

// handleStart starts a loaded task.
func (s *CallgraphServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	s.captureSession(ctx, taskID)

	info, err := s.svc.Start(ctx, taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
	}
	return marshalResult(info)
}

// handleControl applies a lifecycle command.
func (s *CallgraphServer) handleControl(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	info, err := s.svc.Control(ctx, taskID, schema.ControlAction(action), req.GetString("node_id", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err)), nil
	}
	return marshalResult(map[string]any{
		"ok":      true,
		"task_id": taskID,
		"action":  action,
		"status":  info.Status,
		"halted":  info.Halted,
		"step":    info.Step,
	})
}

// handleSignal broadcasts a signal.
func (s *CallgraphServer) handleSignal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	var payload any
	if p := mcp.ParseStringMap(req, "payload", nil); p != nil {
		payload = p
	}

	res, err := s.svc.Signal(ctx, name, payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("signal failed: %v", err)), nil
	}
	return marshalResult(res)
}

// handleStatus describes one task, or lists all of them.
func (s *CallgraphServer) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := req.GetString("task_id", "")
	if taskID == "" {
		return marshalResult(map[string]any{"tasks": s.svc.List()})
	}

	info, err := s.svc.Status(taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", err)), nil
	}
	return marshalResult(info)
}

// captureSession remembers which session to notify about a task.
func (s *CallgraphServer) captureSession(ctx context.Context, taskID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(taskID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// errorResult is an error tool result carrying structured detail.
func errorResult(msg string, detail map[string]any) (*mcp.CallToolResult, error) {
	detail["error"] = msg
	data, err := json.Marshal(detail)
	if err != nil {
		return mcp.NewToolResultError(msg), nil
	}
	return mcp.NewToolResultError(string(data)), nil
}
