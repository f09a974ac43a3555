package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/internal/logging"
	"github.com/rendis/callgraph/internal/metrics"
	"github.com/rendis/callgraph/internal/nodes"
	"github.com/rendis/callgraph/internal/scheduler"
	"github.com/rendis/callgraph/internal/service"
	"github.com/rendis/callgraph/internal/store"
	"github.com/rendis/callgraph/internal/streaming"
)

// runtime is the wired engine shared by every command.
type runtime struct {
	cfg      Config
	logger   *slog.Logger
	store    *store.LibSQLStore
	hub      *streaming.MemoryHub
	registry *prometheus.Registry
	manager  *engine.Manager
	sched    *scheduler.Scheduler
	svc      *service.Service
}

// runtimeOptions selects the optional layers of a runtime.
type runtimeOptions struct {
	// persist opens the libSQL store at cfg.DBPath and records runs and events.
	persist bool
	// logs receives structured logs; stdout stays free for command output.
	logs io.Writer
}

func newRuntime(ctx context.Context, cfg Config, opts runtimeOptions) (_ *runtime, err error) {
	if opts.logs == nil {
		opts.logs = os.Stderr
	}
	logger, err := logging.New(opts.logs, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		hub:      streaming.NewMemoryHub(0),
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			rt.Close(ctx)
		}
	}()

	var next streaming.EventAppender
	statusHooks := []engine.StatusHook{}
	if opts.persist {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
		if err != nil {
			return nil, err
		}
		rt.store = st
		if err := st.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		next = store.NewEventLog(st)
		statusHooks = append(statusHooks, service.NewRunSync(st, logger).StatusHook())
	}

	collector, err := metrics.NewCollector(rt.registry)
	if err != nil {
		return nil, err
	}
	statusHooks = append(statusHooks, collector.StatusHook())

	rt.manager = engine.NewManager(
		engine.WithPoolSize(cfg.PoolSize),
		engine.WithLogger(logger),
		engine.WithAppender(streaming.NewAppender(rt.hub, next, logger)),
		engine.WithManagerHooks(engine.ChainHooks(collector.Hooks(), logHooks(logger))),
		engine.WithStatusHook(engine.ChainStatusHooks(statusHooks...)),
	)
	if err := metrics.RegisterPool(rt.registry, rt.manager); err != nil {
		return nil, err
	}

	nodeReg, err := nodes.NewRegistry(nodes.Config{})
	if err != nil {
		return nil, err
	}
	rt.sched = scheduler.NewScheduler(rt.manager, cfg.TickInterval, logger)

	deps := service.Deps{
		Manager:   rt.manager,
		Registry:  nodeReg,
		Scheduler: rt.sched,
		Logger:    logger,
	}
	if rt.store != nil {
		deps.Store = rt.store
	}
	rt.svc, err = service.New(deps)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// Close stops the scheduler and manager and closes the store.
func (rt *runtime) Close(ctx context.Context) {
	if rt.sched != nil {
		_ = rt.sched.Stop()
	}
	if rt.manager != nil {
		rt.manager.Close(ctx)
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("close store", "error", err)
		}
	}
}

// logHooks logs node results and failures.
func logHooks(logger *slog.Logger) engine.Hooks {
	return engine.Hooks{
		OnReturned: func(ctx context.Context, ev *engine.NodeEvent) {
			logger.InfoContext(ctx, "node returned",
				"task_id", ev.TaskID, "node_id", ev.NodeID, "kind", ev.Kind, "result", ev.Result, "step", ev.Step)
		},
		OnFailed: func(ctx context.Context, ev *engine.NodeEvent) {
			logger.WarnContext(ctx, "node failed",
				"task_id", ev.TaskID, "node_id", ev.NodeID, "kind", ev.Kind, "step", ev.Step, "error", ev.Err)
		},
	}
}
