package store

import "sync"

// Registry hands out one Store per user workspace.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
	hooks  []func(userID string, s *Store)
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// OnCreate runs fn for every workspace created after the call.
func (r *Registry) OnCreate(fn func(userID string, s *Store)) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Get returns the workspace of userID, creating it on first use.
func (r *Registry) Get(userID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[userID]; ok {
		return s
	}
	s := New()
	for _, fn := range r.hooks {
		fn(userID, s)
	}
	r.stores[userID] = s
	return s
}
