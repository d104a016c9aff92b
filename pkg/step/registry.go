package step

import (
	"sort"
	"sync"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
)

// Constructor returns a default-initialized step ready to be decoded into.
type Constructor func() *Step

// Registry maps encoded type names to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// NewDefaultRegistry creates a Registry holding the built-in kinds.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// RegisterDefaults registers every built-in kind under its type name.
func RegisterDefaults(r *Registry) {
	for _, k := range []Kind{KindSolve, KindPredict, KindCorrect, KindSubtract, KindMulti} {
		kind := k
		r.Register(kind.TypeName(), func() *Step { return &Step{Kind: kind} })
	}
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// Create returns a new step for name. Unknown names are protocol errors.
func (r *Registry) Create(name string) (*Step, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, mwerr.Protocol("create step", "kind not registered: %q", name)
	}
	s := ctor()
	if s == nil || s.Kind.TypeName() == "" {
		return nil, mwerr.Protocol("create step", "constructor for %q returned an invalid step", name)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ctors[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
