// Package worker implements the worker side of the master-worker protocol:
// the Proxy that turns a command into a reply, the Factory that selects a
// proxy by name, and the control Loop that drives a proxy over a
// Connection.
package worker

import (
	"context"
	"sort"
	"sync"

	"github.com/bft-labs/mwdispatch/pkg/mwerr"
)

// Proxy executes commands on a worker.
type Proxy interface {
	// WorkTypes returns the work type codes the proxy performs, primary first.
	WorkTypes() []int32
	// HandleData decodes and executes one command and returns the encoded
	// reply. cont is false exactly when the command asked the worker to stop.
	HandleData(ctx context.Context, in []byte) (out []byte, cont bool, err error)
}

// ProxyConstructor creates a proxy.
type ProxyConstructor func() Proxy

// Factory maps proxy type names to constructors, so a worker can be told
// which proxy to run by a configuration string.
type Factory struct {
	mu    sync.RWMutex
	ctors map[string]ProxyConstructor
}

// NewFactory creates an empty Factory.
func NewFactory() *Factory {
	return &Factory{ctors: make(map[string]ProxyConstructor)}
}

// Register adds or replaces the constructor for name.
func (f *Factory) Register(name string, ctor ProxyConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[name] = ctor
}

// Create instantiates the proxy registered as name.
func (f *Factory) Create(name string) (Proxy, error) {
	f.mu.RLock()
	ctor, ok := f.ctors[name]
	f.mu.RUnlock()
	if !ok {
		return nil, mwerr.Protocol("create proxy", "proxy type not registered: %q", name)
	}
	return ctor(), nil
}

// Names returns the registered proxy names, sorted.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.ctors))
	for name := range f.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
