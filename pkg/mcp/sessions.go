package mcp

import "sync"

// SessionRegistry maps task IDs to the MCP session that loaded or started
// them.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // taskID → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a task with a session. A later call wins.
func (r *SessionRegistry) Register(taskID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[taskID] = sessionID
}

// SessionFor returns the session watching the task, if any.
func (r *SessionRegistry) SessionFor(taskID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[taskID]
	return sid, ok
}

// Remove deletes every task mapping of a session. Called when the session
// disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tid, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, tid)
		}
	}
}
