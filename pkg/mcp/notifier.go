package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// TaskNotifier pushes task notifications to connected clients.
type TaskNotifier interface {
	Notify(ctx context.Context, taskID string, payload map[string]any) error
}

// MCPNotifier implements TaskNotifier with MCP server notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes to the session watching a task.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the task's session.
// Best-effort: returns nil if no session watches the task.
func (n *MCPNotifier) Notify(_ context.Context, taskID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(taskID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}
