package sheet

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the sessions served by one process
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry holding sessions
func NewRegistry(sessions ...*Session) *Registry {
	r := &Registry{sessions: make(map[string]*Session, len(sessions))}
	for _, s := range sessions {
		r.sessions[s.Name()] = s
	}
	return r
}

// Get returns the session for a sheet name
func (r *Registry) Get(name string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[name]
	if !ok {
		return nil, fmt.Errorf("sheet %q: %w", name, ErrUnknownSheet)
	}
	return s, nil
}

// Names returns the registered sheet names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every session in name order
func (r *Registry) All() []*Session {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(names))
	for _, name := range names {
		out = append(out, r.sessions[name])
	}
	return out
}
