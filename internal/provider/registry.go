package provider

import "sync"

// Registry maps a provider id to its Port implementation and advertised
// model catalog, grounded on the teacher's internal/provider/registry.go
// shape (a name-keyed map of providers consulted by model id).
type Registry struct {
	mu        sync.RWMutex
	ports     map[string]Port
	models    map[string][]Model
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ports:  make(map[string]Port),
		models: make(map[string][]Model),
	}
}

// Register associates a provider id with its Port and model catalog.
func (r *Registry) Register(id string, port Port, models []Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ports[id] = port
	r.models[id] = models
}

// Port returns the registered Port for a provider id.
func (r *Registry) Port(id string) (Port, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.ports[id]
	return p, ok
}

// Models returns the advertised catalog for a provider id.
func (r *Registry) Models(id string) []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[id]
}

// ModelByID searches every registered provider's catalog for a model id.
func (r *Registry) ModelByID(modelID string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, models := range r.models {
		for _, m := range models {
			if m.ID == modelID {
				return m, true
			}
		}
	}
	return Model{}, false
}
