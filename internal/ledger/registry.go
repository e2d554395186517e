package ledger

import (
	"sort"
	"sync"

	"trade-ledger/internal/metrics"
)

// Registry is the process-wide set of leaderboard-eligible addresses.
// Addresses are stored lowercased; validation happens at the API boundary.
type Registry struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]struct{})}
}

// Register adds a lowercased address. Reports whether the insertion was new.
func (r *Registry) Register(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[addr]; ok {
		return false
	}
	r.users[addr] = struct{}{}
	metrics.RegisteredUsers.Set(float64(len(r.users)))
	return true
}

// Unregister removes an address. Reports whether it was present.
func (r *Registry) Unregister(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[addr]; !ok {
		return false
	}
	delete(r.users, addr)
	metrics.RegisteredUsers.Set(float64(len(r.users)))
	return true
}

// Contains reports membership.
func (r *Registry) Contains(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[addr]
	return ok
}

// List returns a sorted snapshot of the registered addresses. The sorted
// order doubles as the stable tie-break order for leaderboard ranking.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.users))
	for u := range r.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of registered addresses.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
