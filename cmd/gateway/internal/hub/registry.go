package hub

import (
	"sort"
	"sync"
)

// Registry tracks which tokens each connection wants. Connections are keyed
// by id; operations on an unregistered id are no-ops.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]map[string]struct{})}
}

// Register creates an empty subscription set. Registering twice keeps the existing set.
func (r *Registry) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		r.subs[id] = make(map[string]struct{})
	}
}

// Subscribe adds tokens and returns the ones that were not already present.
// Tokens are not validated against the chain.
func (r *Registry) Subscribe(id string, tokens []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[id]
	if !ok {
		return nil
	}
	var added []string
	for _, t := range tokens {
		if _, dup := set[t]; dup {
			continue
		}
		set[t] = struct{}{}
		added = append(added, t)
	}
	return added
}

// Unsubscribe removes tokens and returns the ones that were present.
func (r *Registry) Unsubscribe(id string, tokens []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[id]
	if !ok {
		return nil
	}
	var removed []string
	for _, t := range tokens {
		if _, present := set[t]; present {
			delete(set, t)
			removed = append(removed, t)
		}
	}
	return removed
}

// Clear empties the set but keeps the connection registered.
func (r *Registry) Clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; ok {
		r.subs[id] = make(map[string]struct{})
	}
}

// Drop forgets the connection. It reports whether the id was registered.
func (r *Registry) Drop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return true
}

// TokensFor returns a sorted copy of the connection's subscriptions.
func (r *Registry) TokensFor(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subs[id]
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// InterestedIn returns the sorted ids subscribed to token.
// It scans every connection.
func (r *Registry) InterestedIn(token string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for id, set := range r.subs {
		if _, ok := set[token]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Registered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
