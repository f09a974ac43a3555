package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
)

// FlipFlop alternates between the Flip and Flop results, starting with
// Flip. IsA reports whether the last result was Flip.
type FlipFlop struct {
	*component.Base

	mu   sync.Mutex
	flip bool
}

func newFlipFlop(map[string]any) (component.Component, error) {
	return &FlipFlop{Base: component.NewBase(component.Descriptor{
		Kind:    KindFlipFlop,
		Outputs: []component.Port{{Name: "IsA", Type: convert.Bool}},
		Results: []string{"Flip", "Flop"},
	})}, nil
}

func (c *FlipFlop) Start(context.Context, component.Env, string) (component.Outcome, error) {
	c.mu.Lock()
	c.flip = !c.flip
	isA := c.flip
	c.mu.Unlock()

	c.Publish("IsA", isA)
	if isA {
		return component.Completed("Flip"), nil
	}
	return component.Completed("Flop"), nil
}

type logConfig struct {
	Level string `json:"level"`
}

// Log writes its Message input to the task logger.
type Log struct {
	*component.Base
	level slog.Level
}

func newLog(config map[string]any) (component.Component, error) {
	var cfg logConfig
	if err := component.DecodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return &Log{
		Base: component.NewBase(component.Descriptor{
			Kind:    KindLog,
			Inputs:  []component.Port{{Name: "Message", Type: convert.Any}},
			Results: []string{resultEnd},
		}),
		level: level,
	}, nil
}

func (c *Log) Start(ctx context.Context, env component.Env, _ string) (component.Outcome, error) {
	if env.Logger != nil {
		env.Logger.Log(ctx, c.level, c.Text("Message"), "kind", KindLog)
	}
	return component.Completed(resultEnd), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
