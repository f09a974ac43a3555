// Package mcp exposes the task manager as MCP tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/internal/service"
	"github.com/rendis/callgraph/internal/streaming"
	"github.com/rendis/callgraph/pkg/schema"
)

// CallgraphServerDeps holds the dependencies for creating a CallgraphServer.
// Hub is optional; without it no task notifications are pushed.
type CallgraphServerDeps struct {
	Service *service.Service
	Hub     streaming.EventHub
	Logger  *slog.Logger
	Version string
}

// CallgraphServer wraps an MCP server with the task tool handlers.
type CallgraphServer struct {
	svc       *service.Service
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  TaskNotifier
	mcpServer *server.MCPServer
}

// NewCallgraphServer creates a CallgraphServer with its five tools registered.
func NewCallgraphServer(deps CallgraphServerDeps) *CallgraphServer {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &CallgraphServer{
		svc:      deps.Service,
		hub:      deps.Hub,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"callgraph",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Callgraph runs call graphs of components. Use callgraph.load to register a task definition, callgraph.start to run it, callgraph.control to stop, suspend, resume or continue past a breakpoint, callgraph.signal to broadcast a named signal, and callgraph.status to inspect tasks and their nodes."),
	)
	mcpSrv.AddTools(s.tools()...)

	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *CallgraphServer) Serve(ctx context.Context) error {
	if s.hub != nil {
		go func() {
			if err := s.ForwardEvents(ctx); err != nil {
				s.logger.Warn("event forwarding stopped", "error", err)
			}
		}()
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *CallgraphServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// notifyEvents are the event types pushed to the session watching a task.
var notifyEvents = []string{
	schema.EventTaskCompleted,
	schema.EventTaskStopped,
	schema.EventNodeFailed,
}

// ForwardEvents pushes task completion, stop and node failure events to the
// session that started the task, until ctx is done.
func (s *CallgraphServer) ForwardEvents(ctx context.Context) error {
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{EventTypes: notifyEvents})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			payload := map[string]any{
				"task_id":    ev.TaskID,
				"event_type": ev.EventType,
				"step":       ev.Step,
			}
			if ev.NodeID != "" {
				payload["node_id"] = ev.NodeID
			}
			if err := s.notifier.Notify(ctx, ev.TaskID, payload); err != nil {
				s.logger.Warn("notify task session", "task_id", ev.TaskID, "error", err)
			}
		}
	}
}

func (s *CallgraphServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: loadTool(), Handler: s.handleLoad},
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: controlTool(), Handler: s.handleControl},
		{Tool: signalTool(), Handler: s.handleSignal},
		{Tool: statusTool(), Handler: s.handleStatus},
	}
}

// --- Tool definitions ---

func loadTool() mcp.Tool {
	return mcp.NewTool("callgraph.load",
		mcp.WithDescription("Validate a task definition and register it"),
		mcp.WithObject("definition", mcp.Description("Task definition object (name, schedule, nodes, calls, parameters)")),
		mcp.WithString("document", mcp.Description("Task definition as a YAML or JSON document, used when definition is absent")),
		mcp.WithBoolean("start", mcp.Description("Start the task right after loading it")),
	)
}

func startTool() mcp.Tool {
	return mcp.NewTool("callgraph.start",
		mcp.WithDescription("Start or restart a loaded task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the task to start")),
	)
}

func controlTool() mcp.Tool {
	return mcp.NewTool("callgraph.control",
		mcp.WithDescription("Stop, suspend, resume or continue a task"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the target task")),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum(string(schema.ControlStop), string(schema.ControlSuspend), string(schema.ControlResume), string(schema.ControlContinue)),
			mcp.Description("Lifecycle command to apply"),
		),
		mcp.WithString("node_id", mcp.Description("Node halted at a breakpoint (required for continue)")),
	)
}

func signalTool() mcp.Tool {
	return mcp.NewTool("callgraph.signal",
		mcp.WithDescription("Broadcast a named signal to every task"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Signal name")),
		mcp.WithObject("payload", mcp.Description("Signal payload")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("callgraph.status",
		mcp.WithDescription("Get task status with node states, or list every task"),
		mcp.WithString("task_id", mcp.Description("ID of the task to query (omit to list all tasks)")),
	)
}
