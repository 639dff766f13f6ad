// Package registry maps short model keys to backend model identifiers.
//
// The mapping is an explicit, injected value: construct a Registry from
// configuration and pass it to whoever needs model resolution. Resolution is
// total — an unknown key falls back to the first configured model instead of
// failing, so a stale or missing key never takes the gateway down.
package registry

import "errors"

// ErrNoModels indicates the registry was constructed without any models.
var ErrNoModels = errors.New("at least one model is required")

// Model is one configured backend model.
type Model struct {
	// Key is the short identifier clients send (e.g. "general", "code").
	Key string `json:"key" mapstructure:"key"`
	// Name is the fully-qualified backend model identifier (e.g. "qwen2.5:3b").
	Name string `json:"name" mapstructure:"name"`
	// Label is the human-readable label shown by clients.
	Label string `json:"label" mapstructure:"label"`
}

// Registry resolves model keys against a fixed, ordered mapping.
// The zero value is not useful; use New.
type Registry struct {
	models []Model
}

// New creates a Registry from the given models. Order is preserved and the
// first entry is the fallback for unknown keys.
func New(models []Model) (*Registry, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	cp := make([]Model, len(models))
	copy(cp, models)
	return &Registry{models: cp}, nil
}

// Resolve returns the backend model identifier for key.
// Unknown or empty keys resolve to the default (first) model.
func (r *Registry) Resolve(key string) string {
	for _, m := range r.models {
		if m.Key == key {
			return m.Name
		}
	}
	return r.models[0].Name
}

// List returns the configured models in insertion order.
// The returned slice is a copy.
func (r *Registry) List() []Model {
	cp := make([]Model, len(r.models))
	copy(cp, r.models)
	return cp
}

// Names returns the backend model identifiers in insertion order.
// Used at startup to register each model with the backend.
func (r *Registry) Names() []string {
	names := make([]string, len(r.models))
	for i, m := range r.models {
		names[i] = m.Name
	}
	return names
}
