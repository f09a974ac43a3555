package panel

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rendis/callgraph/pkg/schema"
)

func (s *PanelServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "tasks": len(s.deps.Service.List())})
}

func (s *PanelServer) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.deps.Service.List()})
}

func (s *PanelServer) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Service.Status(r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *PanelServer) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	since := int64(queryInt(r, "since", 0))
	events, err := s.deps.Service.Events(r.Context(), r.PathValue("id"), since)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *PanelServer) handleTaskDiagram(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Service.Diagram(r.PathValue("id"), r.URL.Query().Get("format"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, out)
}

func (s *PanelServer) handleStartTask(w http.ResponseWriter, r *http.Request) {
	info, err := s.deps.Service.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleControlTask applies stop, suspend, resume or continue. Continue
// reads the node from the "node" query parameter.
func (s *PanelServer) handleControlTask(w http.ResponseWriter, r *http.Request) {
	action := schema.ControlAction(r.PathValue("action"))
	info, err := s.deps.Service.Control(r.Context(), r.PathValue("id"), action, r.URL.Query().Get("node"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleSignal emits a signal. The optional JSON body is the payload.
func (s *PanelServer) handleSignal(w http.ResponseWriter, r *http.Request) {
	var payload any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	res, err := s.deps.Service.Signal(r.Context(), r.PathValue("name"), payload)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *PanelServer) handleSchedules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schedules": s.deps.Service.Schedules()})
}
