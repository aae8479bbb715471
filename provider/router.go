package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Router dispatches requests to a backend by model alias. Aliases without a
// route go to the default backend.
// It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	routes   map[string]Client
	fallback Client
}

// NewRouter creates a router with def as the default backend. def may be nil,
// in which case unrouted aliases fail with ErrUnknownModel.
func NewRouter(def Client) *Router {
	return &Router{
		routes:   make(map[string]Client),
		fallback: def,
	}
}

// Register routes a model alias to a backend.
// Panics if the alias is already registered.
func (r *Router) Register(model string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[model]; exists {
		panic(fmt.Sprintf("provider: model %q already routed", model))
	}
	r.routes[model] = c
}

// Route returns the backend for a model alias.
func (r *Router) Route(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.routes[model]; ok {
		return c, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
}

// Routes returns the explicitly routed aliases, sorted.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Complete implements Client by routing on req.Model.
func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	c, err := r.Route(req.Model)
	if err != nil {
		return nil, NewError("router", "complete", err, false)
	}
	return c.Complete(ctx, req)
}

// Provider implements Client.
func (r *Router) Provider() string {
	return "router"
}

var _ Client = (*Router)(nil)
