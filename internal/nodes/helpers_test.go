package nodes

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/callgraph/internal/component"
	"github.com/rendis/callgraph/internal/engine"
	"github.com/rendis/callgraph/internal/logging"
)

// fakeHost records completions instead of queuing them for a driver.
// Go runs its function inline.
type fakeHost struct {
	mu       sync.Mutex
	next     component.Handle
	resolved map[component.Handle]string
	failed   map[component.Handle]error
	bus      *engine.SignalBus
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		resolved: make(map[component.Handle]string),
		failed:   make(map[component.Handle]error),
		bus:      engine.NewSignalBus(),
	}
}

func (h *fakeHost) NewHandle() component.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	return h.next
}

func (h *fakeHost) Resolve(handle component.Handle, result string) {
	h.mu.Lock()
	h.resolved[handle] = result
	h.mu.Unlock()
}

func (h *fakeHost) Fail(handle component.Handle, err error) {
	h.mu.Lock()
	h.failed[handle] = err
	h.mu.Unlock()
}

func (h *fakeHost) Go(handle component.Handle, fn func(ctx context.Context) (string, error)) error {
	result, err := fn(context.Background())
	if err != nil {
		h.Fail(handle, err)
		return nil
	}
	h.Resolve(handle, result)
	return nil
}

func (h *fakeHost) Signals() component.SignalBus { return h.bus }

func (h *fakeHost) result(handle component.Handle) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.resolved[handle]
	return r, ok
}

func (h *fakeHost) failure(handle component.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed[handle]
}

func testEnv(h component.Host) component.Env {
	return component.Env{Step: 1, TaskID: "t1", Node: "n1", Host: h, Logger: logging.Discard()}
}

func create(t *testing.T, kind string, config map[string]any) component.Component {
	t.Helper()
	reg, err := NewRegistry(Config{})
	require.NoError(t, err)
	c, err := reg.New(kind, config)
	require.NoError(t, err)
	return c
}
