package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps vendor ids to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ID]Adapter
}

// NewRegistry returns a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[ID]Adapter{}}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry holds all three vendors configured with the given
// settings. Missing entries fall back to each vendor's defaults.
func DefaultRegistry(settings map[ID]Settings) *Registry {
	return NewRegistry(
		NewAnthropic(settings[Anthropic]),
		NewOpenAI(settings[OpenAI]),
		NewGemini(settings[Gemini]),
	)
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// Get resolves an id or alias.
func (r *Registry) Get(id string) (Adapter, error) {
	pid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[pid]
	if !ok {
		return nil, fmt.Errorf("provider: %s is not registered", pid)
	}
	return a, nil
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
