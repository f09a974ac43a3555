package component

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/rendis/callgraph/internal/convert"
)

// Base implements the bookkeeping shared by most components: the value
// table, change notification and no-op lifecycle methods. Embedders
// implement Start.
type Base struct {
	desc Descriptor

	mu     sync.RWMutex
	values map[string]any
	notify func(name string)
}

// NewBase seeds every port with its default, or the type's zero value.
func NewBase(desc Descriptor) *Base {
	b := &Base{desc: desc, values: make(map[string]any)}
	for _, ports := range [][]Port{desc.Inputs, desc.Outputs} {
		for _, p := range ports {
			if p.Default != nil {
				b.values[p.Name] = p.Default
			} else {
				b.values[p.Name] = convert.Zero(p.Type)
			}
		}
	}
	return b
}

func (b *Base) Descriptor() Descriptor { return b.desc }

func (b *Base) Value(name string) any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values[name]
}

// SetValue writes a value without notification. The engine uses it to
// deliver inputs.
func (b *Base) SetValue(name string, v any) {
	b.mu.Lock()
	b.values[name] = v
	b.mu.Unlock()
}

// Publish writes an output and notifies the change listener.
func (b *Base) Publish(name string, v any) {
	b.mu.Lock()
	b.values[name] = v
	fn := b.notify
	b.mu.Unlock()
	if fn != nil {
		fn(name)
	}
}

func (b *Base) OnPropertyChanged(fn func(name string)) {
	b.mu.Lock()
	b.notify = fn
	b.mu.Unlock()
}

func (b *Base) Int(name string) int                { return cast.ToInt(b.Value(name)) }
func (b *Base) Float(name string) float64          { return cast.ToFloat64(b.Value(name)) }
func (b *Base) Text(name string) string            { return cast.ToString(b.Value(name)) }
func (b *Base) Bool(name string) bool              { return cast.ToBool(b.Value(name)) }
func (b *Base) Duration(name string) time.Duration { return cast.ToDuration(b.Value(name)) }

// Inputs returns a copy of all input values keyed by port name.
func (b *Base) Inputs() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.desc.Inputs))
	for _, p := range b.desc.Inputs {
		out[p.Name] = b.values[p.Name]
	}
	return out
}

// Update keeps a running execution pending.
func (b *Base) Update(context.Context, Env) (Outcome, error) { return Pending(0), nil }

func (b *Base) Stop(context.Context, Env) error    { return nil }
func (b *Base) Suspend(context.Context, Env) error { return nil }
func (b *Base) Resume(context.Context, Env) error  { return nil }
func (b *Base) Abort(context.Context, Env) error   { return nil }
