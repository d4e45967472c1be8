// Package presence tracks which users are connected to this process and what
// each of them is currently doing.
//
// The registry is in-memory only. It is rebuilt from scratch when the process
// restarts and every client has to reconnect.
package presence

import (
	"sort"
	"sync"
)

// DefaultActivity is the label a user gets when they first come online.
const DefaultActivity = "Idle"

type entry[H comparable] struct {
	handle   H
	activity string
	seq      uint64 // order of first registration, kept across overwrites
}

// Registry maps external id -> connection handle and external id -> activity
// label. At most one handle is registered per external id.
type Registry[H comparable] struct {
	mu      sync.RWMutex
	entries map[string]*entry[H]
	nextSeq uint64
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Online     []string    // external ids in first-registration order
	Activities [][2]string // [externalID, label] pairs in the same order
}

// NewRegistry creates an empty registry.
func NewRegistry[H comparable]() *Registry[H] {
	return &Registry[H]{entries: make(map[string]*entry[H])}
}

// Register inserts or overwrites the handle for externalID. An existing
// activity label survives the overwrite, so a fast reconnect keeps its state.
// The replaced handle, if any, is returned so the caller can close it.
func (r *Registry[H]) Register(externalID string, handle H) (previous H, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[externalID]; ok {
		previous, replaced = e.handle, e.handle != handle
		e.handle = handle
		if e.activity == "" {
			e.activity = DefaultActivity
		}
		return previous, replaced
	}

	r.nextSeq++
	r.entries[externalID] = &entry[H]{handle: handle, activity: DefaultActivity, seq: r.nextSeq}
	return previous, false
}

// Unregister removes both mappings for externalID. Removing an absent id is a
// no-op; the return value reports whether anything was removed.
func (r *Registry[H]) Unregister(externalID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[externalID]; !ok {
		return false
	}
	delete(r.entries, externalID)
	return true
}

// Release unregisters externalID only while handle is still the registered
// connection. A connection that was replaced by a newer one cannot evict it.
func (r *Registry[H]) Release(externalID string, handle H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[externalID]
	if !ok || e.handle != handle {
		return false
	}
	delete(r.entries, externalID)
	return true
}

// SetActivity overwrites the label of a registered id. Late events for an id
// that has already gone offline are ignored and return false.
func (r *Registry[H]) SetActivity(externalID, label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[externalID]
	if !ok {
		return false
	}
	e.activity = label
	return true
}

// Activity returns the current label for externalID.
func (r *Registry[H]) Activity(externalID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[externalID]
	if !ok {
		return "", false
	}
	return e.activity, true
}

// Handle returns the live connection for externalID.
func (r *Registry[H]) Handle(externalID string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[externalID]
	if !ok {
		var zero H
		return zero, false
	}
	return e.handle, true
}

// Handles returns every live connection.
func (r *Registry[H]) Handles() []H {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]H, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.handle)
	}
	return out
}

// Len returns the number of online ids.
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot copies the online ids and their activities.
func (r *Registry[H]) Snapshot() Snapshot {
	r.mu.RLock()
	type row struct {
		id       string
		activity string
		seq      uint64
	}
	rows := make([]row, 0, len(r.entries))
	for id, e := range r.entries {
		rows = append(rows, row{id: id, activity: e.activity, seq: e.seq})
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	snap := Snapshot{
		Online:     make([]string, len(rows)),
		Activities: make([][2]string, len(rows)),
	}
	for i, rw := range rows {
		snap.Online[i] = rw.id
		snap.Activities[i] = [2]string{rw.id, rw.activity}
	}
	return snap
}
