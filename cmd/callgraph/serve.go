package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/callgraph/internal/panel"
	"github.com/rendis/callgraph/pkg/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve [file...]",
	Short: "Run the scheduler and the MCP stdio server",
	Long: `Starts the tick scheduler and serves the callgraph MCP tools over stdio.
Definitions given as arguments are loaded first; those with a schedule are
started by the scheduler. With metrics_addr set, /metrics and the HTTP API
are served on that address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, cfg, runtimeOptions{persist: true, logs: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer rt.Close(context.WithoutCancel(ctx))

		if err := loadFiles(ctx, rt, args); err != nil {
			return err
		}
		return serve(ctx, rt)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// loadFiles loads each definition, failing on the first invalid one.
func loadFiles(ctx context.Context, rt *runtime, paths []string) error {
	for _, path := range paths {
		def, issues, err := rt.svc.ReadDefinition(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if def == nil {
			return fmt.Errorf("%s: %w", path, issues.ToError())
		}
		res, err := rt.svc.Load(ctx, def)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		rt.logger.Info("task loaded", "task_id", res.TaskID, "name", res.Name, "scheduled", res.Scheduled)
	}
	return nil
}

func serve(ctx context.Context, rt *runtime) error {
	if err := rt.sched.Start(ctx); err != nil {
		return err
	}

	if rt.cfg.MetricsAddr != "" {
		srv := panel.NewPanelServer(panel.PanelDeps{
			Service:  rt.svc,
			Hub:      rt.hub,
			Gatherer: rt.registry,
			Logger:   rt.logger,
		})
		go func() {
			if err := srv.ListenAndServe(ctx, rt.cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.logger.Error("http server", "error", err)
			}
		}()
	}

	mcpSrv := mcp.NewCallgraphServer(mcp.CallgraphServerDeps{
		Service: rt.svc,
		Hub:     rt.hub,
		Logger:  rt.logger,
		Version: version,
	})
	rt.logger.Info("callgraph serving", "version", version, "db", rt.cfg.DBPath, "tick_interval", rt.cfg.TickInterval)
	if err := mcpSrv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
