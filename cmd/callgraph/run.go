package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/pkg/schema"
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Load a task definition and tick it until it finishes",
	Long: `Loads and validates a task definition, starts it and advances the engine one
tick at a time until the task completes or the tick budget runs out. Signals
given with --signal are broadcast before the first tick, or before tick N when
written as name@N. The final task state is printed as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		opts, err := runOptionsFromFlags(cmd, cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		persist, _ := cmd.Flags().GetBool("persist")
		rt, err := newRuntime(ctx, cfg, runtimeOptions{persist: persist, logs: cmd.ErrOrStderr()})
		if err != nil {
			return err
		}
		defer rt.Close(context.WithoutCancel(ctx))

		_, err = runTask(ctx, rt, args[0], opts, cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("ticks", 1000, "maximum number of ticks before the task is stopped")
	runCmd.Flags().Duration("interval", 0, "simulated time per tick (default: tick_interval)")
	runCmd.Flags().StringArray("signal", nil, "signal to broadcast, as name or name@tick (repeatable)")
	runCmd.Flags().Bool("persist", false, "record the run and its events in the database")
	runCmd.Flags().Bool("realtime", false, "sleep for the interval between ticks")
}

// runOptions controls one run.
type runOptions struct {
	Ticks    int
	Interval time.Duration
	Signals  []timedSignal
	Realtime bool
}

// timedSignal is a signal broadcast before a given tick.
type timedSignal struct {
	Name string
	Tick int
}

func runOptionsFromFlags(cmd *cobra.Command, cfg Config) (runOptions, error) {
	ticks, _ := cmd.Flags().GetInt("ticks")
	interval, _ := cmd.Flags().GetDuration("interval")
	raw, _ := cmd.Flags().GetStringArray("signal")
	realtime, _ := cmd.Flags().GetBool("realtime")

	if ticks < 0 {
		return runOptions{}, fmt.Errorf("--ticks must not be negative")
	}
	if interval <= 0 {
		interval = cfg.TickInterval
	}
	signals, err := parseSignals(raw)
	if err != nil {
		return runOptions{}, err
	}
	return runOptions{Ticks: ticks, Interval: interval, Signals: signals, Realtime: realtime}, nil
}

// parseSignals reads name or name@tick entries. A bare name fires before
// tick 1.
func parseSignals(raw []string) ([]timedSignal, error) {
	out := make([]timedSignal, 0, len(raw))
	for _, s := range raw {
		name, at, found := strings.Cut(s, "@")
		sig := timedSignal{Name: strings.TrimSpace(name), Tick: 1}
		if sig.Name == "" {
			return nil, fmt.Errorf("invalid signal %q: empty name", s)
		}
		if found {
			n, err := strconv.Atoi(at)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid signal %q: tick must be a positive integer", s)
			}
			sig.Tick = n
		}
		out = append(out, sig)
	}
	return out, nil
}

// runTask loads the definition at path, starts it and ticks until the task
// leaves the running or suspended state. A task still active after the
// tick budget is stopped and reported as an error.
func runTask(ctx context.Context, rt *runtime, path string, opts runOptions, out io.Writer) (engine.TaskInfo, error) {
	def, issues, err := rt.svc.ReadDefinition(path)
	if err != nil {
		return engine.TaskInfo{}, err
	}
	if def == nil {
		printIssues(out, path, issues)
		return engine.TaskInfo{}, issues.ToError()
	}

	loaded, err := rt.svc.Load(ctx, def)
	if err != nil {
		if schema.HasCode(err, schema.ErrCodeValidation) {
			printIssues(out, path, rt.svc.Validate(def))
		}
		return engine.TaskInfo{}, err
	}
	for _, w := range loaded.Warnings {
		rt.logger.Warn("definition warning", "path", w.Path, "message", w.Message)
	}

	info, err := rt.svc.Start(ctx, loaded.TaskID)
	if err != nil {
		return info, err
	}

	for tick := 1; tick <= opts.Ticks && active(info.Status); tick++ {
		for _, sig := range opts.Signals {
			if sig.Tick == tick {
				if _, err := rt.svc.Signal(ctx, sig.Name, nil); err != nil {
					return info, err
				}
			}
		}
		rt.manager.Tick(ctx, opts.Interval)
		if opts.Realtime {
			select {
			case <-ctx.Done():
				return info, ctx.Err()
			case <-time.After(opts.Interval):
			}
		}
		if info, err = rt.svc.Status(loaded.TaskID); err != nil {
			return info, err
		}
	}

	var budgetErr error
	if active(info.Status) {
		budgetErr = schema.NewErrorf(schema.ErrCodeExecution, "task %q still %s after %d ticks", def.Name, info.Status, opts.Ticks)
		if info, err = rt.svc.Control(ctx, loaded.TaskID, schema.ControlStop, ""); err != nil {
			return info, err
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		return info, err
	}
	return info, budgetErr
}

func active(status schema.TaskStatus) bool {
	return status == schema.TaskStatusRunning || status == schema.TaskStatusSuspended
}
