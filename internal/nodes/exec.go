package nodes

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/pkg/schema"
)

type execConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	Dir     string            `json:"dir"`
	Shell   bool              `json:"shell"`
	Timeout time.Duration     `json:"timeout"`
}

// Exec runs a command on the host's worker pool. It returns Success on a
// zero exit code and Failure otherwise; a command that cannot be started
// fails the node. Stdin is read when the node starts. Stdout, Stderr and
// ExitCode are written before the result fires, without change
// notification, since the command finishes off the driver's path.
type Exec struct {
	*component.Base
	cfg       execConfig
	maxOutput int64

	mu      sync.Mutex
	cancels map[component.Handle]context.CancelFunc
}

func execFactory(defaults Config) component.Factory {
	return func(config map[string]any) (component.Component, error) {
		var cfg execConfig
		if err := component.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		if cfg.Command == "" {
			return nil, errors.New("exec: command is required")
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = defaults.ExecTimeout
		}
		return &Exec{
			Base: component.NewBase(component.Descriptor{
				Kind:   KindExec,
				Inputs: []component.Port{{Name: "Stdin", Type: convert.String}},
				Outputs: []component.Port{
					{Name: "Stdout", Type: convert.String},
					{Name: "Stderr", Type: convert.String},
					{Name: "ExitCode", Type: convert.Int},
				},
				Results: []string{"Success", "Failure"},
			}),
			cfg:       cfg,
			maxOutput: defaults.MaxOutputSize,
			cancels:   make(map[component.Handle]context.CancelFunc),
		}, nil
	}
}

func (c *Exec) Start(_ context.Context, env component.Env, _ string) (component.Outcome, error) {
	if env.Host == nil {
		return component.Outcome{}, schema.NewError(schema.ErrCodeComponentUnavailable, "exec: no host")
	}
	stdin := c.Text("Stdin")
	h := env.Host.NewHandle()
	if err := env.Host.Go(h, func(ctx context.Context) (string, error) {
		return c.run(ctx, h, stdin)
	}); err != nil {
		return component.Outcome{}, err
	}
	return component.Pending(h), nil
}

func (c *Exec) run(ctx context.Context, h component.Handle, stdin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	c.mu.Lock()
	c.cancels[h] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, h)
		c.mu.Unlock()
		cancel()
	}()

	var cmd *exec.Cmd
	if c.cfg.Shell {
		line := c.cfg.Command
		if len(c.cfg.Args) > 0 {
			line += " " + strings.Join(c.cfg.Args, " ")
		}
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", line)
	} else {
		cmd = exec.CommandContext(ctx, c.cfg.Command, c.cfg.Args...)
	}
	cmd.Dir = c.cfg.Dir
	if len(c.cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: c.maxOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: c.maxOutput}

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return "", schema.NewErrorf(schema.ErrCodeComponentFailed, "exec %s: %v", c.cfg.Command, runErr).WithCause(runErr)
		}
		exitCode = exitErr.ExitCode()
		if ctx.Err() != nil {
			return "", schema.NewErrorf(schema.ErrCodeCancelled, "exec %s: %v", c.cfg.Command, ctx.Err()).WithCause(ctx.Err())
		}
	}

	c.SetValue("Stdout", stdout.String())
	c.SetValue("Stderr", stderr.String())
	c.SetValue("ExitCode", exitCode)
	if exitCode != 0 {
		return "Failure", nil
	}
	return "Success", nil
}

// Stop kills every running command.
func (c *Exec) Stop(context.Context, component.Env) error {
	c.cancelAll()
	return nil
}

func (c *Exec) Abort(context.Context, component.Env) error {
	c.cancelAll()
	return nil
}

func (c *Exec) Dispose() { c.cancelAll() }

func (c *Exec) cancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.cancels {
		cancel()
	}
}

// limitedWriter discards bytes beyond limit but reports them written, so
// the child never blocks on a full pipe.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return total, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return total, err
}
