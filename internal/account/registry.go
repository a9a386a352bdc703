package account

import (
	"sort"
	"sync"
)

type entry struct {
	mu      sync.Mutex
	account *Account
}

// Registry maps client ids to accounts, creating them on first reference.
// Distinct clients never contend; one client's account has a single writer at a time.
type Registry struct {
	mu      sync.RWMutex
	entries map[uint16]*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint16]*entry)}
}

func (r *Registry) getOrCreate(clientID uint16) *entry {
	r.mu.RLock()
	e, ok := r.entries[clientID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[clientID]; ok {
		return e
	}
	e = &entry{account: New(clientID)}
	r.entries[clientID] = e
	return e
}

// Update runs fn with exclusive access to the client's account, creating it if needed.
func (r *Registry) Update(clientID uint16, fn func(*Account) error) error {
	e := r.getOrCreate(clientID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.account)
}

// Get returns a snapshot of the client's account, if it exists.
func (r *Registry) Get(clientID uint16) (Snapshot, bool) {
	r.mu.RLock()
	e, ok := r.entries[clientID]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account.Snapshot(), true
}

// Len returns the number of known clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshots returns every account ordered by client id.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.account.Snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}
