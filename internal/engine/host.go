package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rendis/callgraph/internal/component"
)

// resolution is a completion reported by a component through its host.
type resolution struct {
	taskID string
	handle component.Handle
	result string
	err    error
}

// dispatcher collects completions from any goroutine until the driver
// drains them on its serialized path.
type dispatcher struct {
	ctx  context.Context
	pool *WorkerPool
	bus  *SignalBus
	next atomic.Uint64

	mu    sync.Mutex
	queue []resolution
}

func newDispatcher(ctx context.Context, pool *WorkerPool, bus *SignalBus) *dispatcher {
	return &dispatcher{ctx: ctx, pool: pool, bus: bus}
}

func (d *dispatcher) push(r resolution) {
	d.mu.Lock()
	d.queue = append(d.queue, r)
	d.mu.Unlock()
}

// drain returns and clears the queued completions in arrival order.
func (d *dispatcher) drain() []resolution {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.queue
	d.queue = nil
	return out
}

// requeue puts back completions the driver could not apply yet, ahead of
// anything that arrived meanwhile.
func (d *dispatcher) requeue(rs []resolution) {
	if len(rs) == 0 {
		return
	}
	d.mu.Lock()
	d.queue = append(append([]resolution(nil), rs...), d.queue...)
	d.mu.Unlock()
}

func (d *dispatcher) pendingFor(taskID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.queue {
		if r.taskID == taskID {
			n++
		}
	}
	return n
}

func (d *dispatcher) hostFor(taskID string) component.Host {
	return &taskHost{d: d, taskID: taskID}
}

// taskHost is the component.Host handed to the components of one task.
type taskHost struct {
	d      *dispatcher
	taskID string
}

func (h *taskHost) NewHandle() component.Handle {
	return component.Handle(h.d.next.Add(1))
}

func (h *taskHost) Resolve(handle component.Handle, result string) {
	h.d.push(resolution{taskID: h.taskID, handle: handle, result: result})
}

func (h *taskHost) Fail(handle component.Handle, err error) {
	if err == nil {
		err = fmt.Errorf("component failed")
	}
	h.d.push(resolution{taskID: h.taskID, handle: handle, err: err})
}

func (h *taskHost) Go(handle component.Handle, fn func(ctx context.Context) (string, error)) error {
	return h.d.pool.Submit(h.d.ctx, Job{
		Name: fmt.Sprintf("%s/%d", h.taskID, handle),
		Run: func(ctx context.Context) error {
			result, err := fn(ctx)
			if err != nil {
				h.Fail(handle, err)
				return err
			}
			h.Resolve(handle, result)
			return nil
		},
		OnPanic: func(err error) { h.Fail(handle, err) },
	})
}

func (h *taskHost) Signals() component.SignalBus {
	return h.d.bus
}
