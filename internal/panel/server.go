// Package panel serves the HTTP observation surface of a running engine:
// task status and control as JSON, live events over Server-Sent Events and
// Prometheus metrics.
package panel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/internal/service"
	"github.com/rendis/callgraph/internal/streaming"
)

// PanelDeps holds the dependencies for the panel server. Hub and Gatherer
// are optional; their routes are not mounted without them.
type PanelDeps struct {
	Service  *service.Service
	Hub      streaming.EventHub
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// PanelServer serves the panel routes.
type PanelServer struct {
	deps PanelDeps
}

// NewPanelServer creates a PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &PanelServer{deps: deps}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskStatus)
	mux.HandleFunc("GET /api/tasks/{id}/events", s.handleTaskEvents)
	mux.HandleFunc("GET /api/tasks/{id}/diagram", s.handleTaskDiagram)
	mux.HandleFunc("POST /api/tasks/{id}/start", s.handleStartTask)
	mux.HandleFunc("POST /api/tasks/{id}/{action}", s.handleControlTask)
	mux.HandleFunc("POST /api/signals/{name}", s.handleSignal)
	mux.HandleFunc("GET /api/schedules", s.handleSchedules)

	if s.deps.Hub != nil {
		mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
		mux.HandleFunc("GET /sse/tasks/{id}", s.handleSSETask)
	}
	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves the panel on addr until ctx is cancelled, then
// shuts down gracefully.
func (s *PanelServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("panel listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
