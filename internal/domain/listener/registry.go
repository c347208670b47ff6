package listener

import (
	"context"
	"encoding/json"
	"sync"
)

// Invoker is the code side of a handler registration: the function that runs
// when an event matched a handler targeting it.
type Invoker func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Registry maps "service.method" targets to invokers. Registration happens at
// startup; lookups happen on every dispatch, so reads take the fast path.
type Registry struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
}

func NewRegistry() *Registry {
	return &Registry{invokers: make(map[string]Invoker)}
}

// Bind registers fn under target, replacing any previous binding.
func (r *Registry) Bind(target string, fn Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[target] = fn
}

// Resolve returns the invoker for target.
func (r *Registry) Resolve(target string) (Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.invokers[target]
	return fn, ok
}

// Targets lists every bound target.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.invokers))
	for t := range r.invokers {
		out = append(out, t)
	}
	return out
}
