package component

import (
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/rendis/callgraph/pkg/schema"
)

// Factory creates a component instance from its node configuration.
type Factory func(config map[string]any) (Component, error)

// Info summarizes a registered kind for listing.
type Info struct {
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
}

type entry struct {
	factory     Factory
	description string
}

// Registry maps component kinds to factories. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]entry)}
}

// Register adds a factory. Returns error on duplicate kind.
func (r *Registry) Register(kind, description string, f Factory) error {
	if f == nil {
		return schema.NewError(schema.ErrCodeValidation, "component factory is nil")
	}
	if kind == "" {
		return schema.NewError(schema.ErrCodeValidation, "component kind is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[kind]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "component kind %q already registered", kind)
	}
	r.kinds[kind] = entry{factory: f, description: description}
	return nil
}

// New instantiates a component of the given kind.
func (r *Registry) New(kind string, config map[string]any) (Component, error) {
	r.mu.RLock()
	e, ok := r.kinds[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeComponentUnavailable, "component kind %q not registered", kind)
	}
	c, err := e.factory(config)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "create %s: %s", kind, err.Error()).WithCause(err)
	}
	return c, nil
}

// Has checks if a kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[kind]
	return ok
}

// List returns all registered kinds, sorted.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.kinds))
	for k, e := range r.kinds {
		infos = append(infos, Info{Kind: k, Description: e.description})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}

// Count returns the number of registered kinds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}

// DecodeConfig decodes a node's loosely typed configuration map into out.
// Strings are accepted for numbers, booleans and durations.
func DecodeConfig(config map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(config)
}
