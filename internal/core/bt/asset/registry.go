package asset

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/zeusync/behave/internal/core/bt"
)

// Factory builds the behavior of one node from its params. childCount is the number of
// children the node was declared with, so composites and decorators can reject bad arity.
type Factory func(params Params, childCount int) (bt.Behavior, error)

// Registry maps node type names to factories. Type names are case-insensitive.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) error {
	key := strings.ToLower(name)
	if key == "" || f == nil {
		return fmt.Errorf("register node type %q: empty name or nil factory", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("node type already registered: %s", name)
	}
	r.factories[key] = f
	return nil
}

// MustRegister is Register that panics, for init-time registration of built-in types.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[strings.ToLower(name)]
	return f, ok
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

func (r *Registry) build(name string, node ConfigNode) (bt.Behavior, error) {
	f, ok := r.Lookup(node.Type)
	if !ok {
		return nil, fmt.Errorf("node %s: unknown node type: %s", name, node.Type)
	}
	b, err := f(node.Params, len(node.childNames()))
	if err != nil {
		return nil, fmt.Errorf("node %s (%s): %w", name, node.Type, err)
	}
	if b == nil {
		return nil, fmt.Errorf("node %s (%s): factory returned no behavior", name, node.Type)
	}
	return b, nil
}
