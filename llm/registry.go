package llm

import (
	"fmt"
	"sort"
	"sync"
)

// CallerRegistry resolves provider names to Callers. Agents name a
// provider in their model binding; the registry is where that name turns
// into a concrete client. One provider may be marked as the default,
// used when an agent names none.
type CallerRegistry struct {
	mu         sync.RWMutex
	byProvider map[string]Caller
	def        string
}

// NewCallerRegistry returns an empty registry.
func NewCallerRegistry() *CallerRegistry {
	return &CallerRegistry{byProvider: map[string]Caller{}}
}

// Register binds a provider name to a caller, replacing any previous
// binding under that name.
func (r *CallerRegistry) Register(provider string, c Caller) {
	r.mu.Lock()
	r.byProvider[provider] = c
	r.mu.Unlock()
}

// Get looks up the caller for a provider name.
func (r *CallerRegistry) Get(provider string) (Caller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byProvider[provider]
	return c, ok
}

// Default returns the caller bound to the default provider. Without an
// explicit SetDefault there is no default.
func (r *CallerRegistry) Default() (Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.def == "" {
		return nil, fmt.Errorf("no default provider configured")
	}
	c, ok := r.byProvider[r.def]
	if !ok {
		return nil, fmt.Errorf("default provider %q has no registered caller", r.def)
	}
	return c, nil
}

// SetDefault marks an already-registered provider as the default.
func (r *CallerRegistry) SetDefault(provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byProvider[provider]; !ok {
		return fmt.Errorf("provider %q not registered", provider)
	}
	r.def = provider
	return nil
}

// List returns the registered provider names, sorted.
func (r *CallerRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byProvider))
	for name := range r.byProvider {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister drops a provider's binding. Dropping the default provider
// leaves the registry without a default.
func (r *CallerRegistry) Unregister(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byProvider, provider)
	if r.def == provider {
		r.def = ""
	}
}
