package nodes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
	"github.com/rendis/callgraph/pkg/schema"
)

type signalConfig struct {
	Signal string `json:"signal"`
}

func decodeSignal(kind string, config map[string]any) (string, error) {
	var cfg signalConfig
	if err := component.DecodeConfig(config, &cfg); err != nil {
		return "", err
	}
	if cfg.Signal == "" {
		return "", fmt.Errorf("%s: signal is required", kind)
	}
	return cfg.Signal, nil
}

// Emit broadcasts its configured signal with the Payload input, then
// returns End. Receivers in every task of the manager see it before Emit
// returns.
type Emit struct {
	*component.Base
	signal string
}

func newEmit(config map[string]any) (component.Component, error) {
	name, err := decodeSignal(KindEmit, config)
	if err != nil {
		return nil, err
	}
	return &Emit{
		Base: component.NewBase(component.Descriptor{
			Kind:    KindEmit,
			Inputs:  []component.Port{{Name: "Payload", Type: convert.Any}},
			Results: []string{resultEnd},
		}),
		signal: name,
	}, nil
}

func (c *Emit) Start(ctx context.Context, env component.Env, _ string) (component.Outcome, error) {
	if env.Host == nil {
		return component.Outcome{}, schema.NewError(schema.ErrCodeComponentUnavailable, "emit: no host")
	}
	env.Host.Signals().Emit(ctx, schema.Signal{
		Name:      c.signal,
		Payload:   c.Value("Payload"),
		Source:    env.TaskID,
		Step:      env.Step,
		EmittedAt: time.Now().UTC(),
	})
	return component.Completed(resultEnd), nil
}

// Wait subscribes to its signal when started and returns Received with the
// signal's payload on "Payload". Cancel returns Cancelled instead.
type Wait struct {
	*component.Base
	signal string

	mu          sync.Mutex
	handle      component.Handle
	host        component.Host
	unsubscribe func()
}

func newWait(config map[string]any) (component.Component, error) {
	name, err := decodeSignal(KindWait, config)
	if err != nil {
		return nil, err
	}
	return &Wait{
		Base: component.NewBase(component.Descriptor{
			Kind:                 KindWait,
			Outputs:              []component.Port{{Name: "Payload", Type: convert.Any}},
			Results:              []string{"Received", "Cancelled"},
			AdditionalStartPorts: []string{portCancel},
		}),
		signal: name,
	}, nil
}

func (c *Wait) Start(_ context.Context, env component.Env, port string) (component.Outcome, error) {
	if env.Host == nil {
		return component.Outcome{}, schema.NewError(schema.ErrCodeComponentUnavailable, "wait: no host")
	}
	if port == portCancel {
		if c.finish("Cancelled") {
			return component.Pending(0), nil
		}
		return component.Completed("Cancelled"), nil
	}

	h := env.Host.NewHandle()
	c.mu.Lock()
	c.handle, c.host = h, env.Host
	c.unsubscribe = env.Host.Signals().Subscribe(c.signal, func(sig schema.Signal) {
		c.SetValue("Payload", sig.Payload)
		c.finish("Received")
	})
	c.mu.Unlock()
	return component.Pending(h), nil
}

// finish resolves the outstanding wait once. It reports whether a wait was
// outstanding.
func (c *Wait) finish(result string) bool {
	c.mu.Lock()
	h, host, unsub := c.handle, c.host, c.unsubscribe
	c.handle, c.host, c.unsubscribe = 0, nil, nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if h == 0 || host == nil {
		return false
	}
	host.Resolve(h, result)
	return true
}

func (c *Wait) Stop(context.Context, component.Env) error {
	c.release()
	return nil
}

func (c *Wait) Abort(context.Context, component.Env) error {
	c.release()
	return nil
}

func (c *Wait) Dispose() { c.release() }

func (c *Wait) release() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.handle, c.host, c.unsubscribe = 0, nil, nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
