package node

import (
	"sync"

	"simkernel/internal/config"
	"simkernel/internal/strategy"
)

// MetaData is the read-only projection of a node's identity and pose shared
// fleet-wide (spec §3 "NodeMetaData"). It is written only at spawn and at
// the end of each update step; it is read by peer sensors (via the service
// bus) and the recorder far more often than it is written, which is why the
// registry below uses a single reader/writer lock rather than one per node.
type MetaData struct {
	Name     string
	Kind     config.Kind
	Model    string
	Labels   []string
	State    State
	Position strategy.Position
}

// Registry is the fleet-wide metadata map: a single reader/writer lock,
// written only at node spawn/kill, read on every sensor step (spec §5
// "Metadata map").
type Registry struct {
	mu   sync.RWMutex
	data map[string]MetaData
}

// NewRegistry constructs an empty fleet metadata registry.
func NewRegistry() *Registry {
	return &Registry{data: make(map[string]MetaData)}
}

// Set installs or replaces a node's metadata snapshot.
func (r *Registry) Set(meta MetaData) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		r.data = make(map[string]MetaData)
	}
	r.data[meta.Name] = meta
}

// Get returns the named node's metadata snapshot.
func (r *Registry) Get(name string) (MetaData, bool) {
	if r == nil {
		return MetaData{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.data[name]
	return meta, ok
}

// Remove drops a node's metadata entry, once it is Terminated.
func (r *Registry) Remove(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, name)
}

// Snapshot returns every node's current metadata, for the recorder and the
// live-view server.
func (r *Registry) Snapshot() []MetaData {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MetaData, 0, len(r.data))
	for _, meta := range r.data {
		out = append(out, meta)
	}
	return out
}
