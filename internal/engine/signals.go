package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rendis/callgraph/pkg/schema"
)

type signalSub struct {
	id   uint64
	name string
	fn   func(schema.Signal)
}

// SignalBus is a synchronous broadcast bus. Emit calls every subscriber
// registered for the signal name at emit time; signals with no subscriber
// are dropped. Subscribers are called in subscription order.
type SignalBus struct {
	mu   sync.RWMutex
	subs []signalSub
	seq  atomic.Uint64
	// OnEmit observes every emitted signal, delivered or not.
	OnEmit func(context.Context, schema.Signal, int)
}

// NewSignalBus creates an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{}
}

// Emit delivers sig to the current subscribers of sig.Name.
func (b *SignalBus) Emit(ctx context.Context, sig schema.Signal) {
	if sig.EmittedAt.IsZero() {
		sig.EmittedAt = time.Now().UTC()
	}

	b.mu.RLock()
	var targets []func(schema.Signal)
	for _, s := range b.subs {
		if s.name == sig.Name {
			targets = append(targets, s.fn)
		}
	}
	observer := b.OnEmit
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(sig)
	}
	if observer != nil {
		observer(ctx, sig, len(targets))
	}
}

// Subscribe registers fn for the named signal. The returned cancel function
// is idempotent.
func (b *SignalBus) Subscribe(name string, fn func(schema.Signal)) func() {
	id := b.seq.Add(1)
	b.mu.Lock()
	b.subs = append(b.subs, signalSub{id: id, name: name, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Subscribers returns the number of live subscriptions for name.
func (b *SignalBus) Subscribers(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.name == name {
			n++
		}
	}
	return n
}
