package nodes

import (
	"context"
	"sync"
	"time"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/convert"
)

// Delay returns End once Duration of simulation time has elapsed since it
// started. A trigger on Cancel while it waits returns Cancelled instead.
// Suspended delays do not advance because suspended tasks are not updated.
type Delay struct {
	*component.Base

	mu      sync.Mutex
	elapsed time.Duration
}

func newDelay(map[string]any) (component.Component, error) {
	return &Delay{Base: component.NewBase(component.Descriptor{
		Kind:                 KindDelay,
		Inputs:               []component.Port{{Name: "Duration", Type: convert.Duration}},
		Outputs:              []component.Port{{Name: "Elapsed", Type: convert.Duration}},
		Results:              []string{resultEnd, "Cancelled"},
		Updatable:            true,
		AdditionalStartPorts: []string{portCancel},
	})}, nil
}

func (c *Delay) Start(_ context.Context, _ component.Env, port string) (component.Outcome, error) {
	if port == portCancel {
		return component.Completed("Cancelled"), nil
	}
	c.mu.Lock()
	c.elapsed = 0
	c.mu.Unlock()
	c.Publish("Elapsed", time.Duration(0))
	if c.Duration("Duration") <= 0 {
		return component.Completed(resultEnd), nil
	}
	return component.Pending(0), nil
}

func (c *Delay) Update(_ context.Context, env component.Env) (component.Outcome, error) {
	c.mu.Lock()
	c.elapsed += env.Delta
	elapsed := c.elapsed
	c.mu.Unlock()

	c.Publish("Elapsed", elapsed)
	if elapsed >= c.Duration("Duration") {
		return component.Completed(resultEnd), nil
	}
	return component.Pending(0), nil
}

// Loop fires Iteration Count times, publishing the zero-based Index before
// each, then finishes on End. The first iteration fires on start, the next
// ones once per Interval of simulation time. Break ends the loop early.
type Loop struct {
	*component.Base

	mu      sync.Mutex
	index   int
	elapsed time.Duration
}

func newLoop(map[string]any) (component.Component, error) {
	return &Loop{Base: component.NewBase(component.Descriptor{
		Kind: KindLoop,
		Inputs: []component.Port{
			{Name: "Count", Type: convert.Int},
			{Name: "Interval", Type: convert.Duration},
		},
		Outputs:              []component.Port{{Name: "Index", Type: convert.Int}},
		Results:              []string{"Iteration", resultEnd},
		Updatable:            true,
		AdditionalStartPorts: []string{"Break"},
	})}, nil
}

func (c *Loop) Start(_ context.Context, _ component.Env, port string) (component.Outcome, error) {
	if port == "Break" {
		return component.Completed(resultEnd), nil
	}
	c.mu.Lock()
	c.index, c.elapsed = 0, 0
	c.mu.Unlock()
	return c.next(), nil
}

// Update re-reads Count and Interval, which stay live while the loop runs.
func (c *Loop) Update(_ context.Context, env component.Env) (component.Outcome, error) {
	c.mu.Lock()
	c.elapsed += env.Delta
	due := c.elapsed >= c.Duration("Interval")
	if due {
		c.elapsed = 0
	}
	c.mu.Unlock()

	if !due {
		return component.Pending(0), nil
	}
	return c.next(), nil
}

func (c *Loop) next() component.Outcome {
	c.mu.Lock()
	i := c.index
	if i >= c.Int("Count") {
		c.mu.Unlock()
		return component.Completed(resultEnd)
	}
	c.index++
	c.mu.Unlock()

	c.Publish("Index", i)
	return component.Yielded("Iteration")
}
