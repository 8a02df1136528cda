// Package adapter provides the provider adapter registry and helpers shared
// by the per-provider adapter implementations.
package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erenbertr/chatrelay/internal/domain"
)

// Registry maps provider kinds to adapter implementations. Adding a
// provider is a compile-time-checked registration, not a string switch.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.ProviderKind]domain.Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.ProviderKind]domain.Adapter),
	}
}

// Register adds an adapter under its kind. Panics on duplicate registration;
// wiring happens once at startup.
func (r *Registry) Register(a domain.Adapter) {
	r.RegisterAs(a.Kind(), a)
}

// RegisterAs adds an adapter under an explicit kind. Used for the custom
// OpenAI-compatible kind, which reuses the OpenAI adapter.
func (r *Registry) RegisterAs(kind domain.ProviderKind, a domain.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[kind]; exists {
		panic(fmt.Sprintf("adapter %q already registered", kind))
	}
	r.adapters[kind] = a
}

// Get returns the adapter for a provider kind.
func (r *Registry) Get(kind domain.ProviderKind) (domain.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider kind %q", kind)
	}
	return a, nil
}

// Kinds returns the registered kinds sorted by name.
func (r *Registry) Kinds() []domain.ProviderKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.ProviderKind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// UnsupportedSearchNote is the informational chunk emitted when web search
// is requested against a model that does not support it. Generation
// continues normally after it.
func UnsupportedSearchNote(model string) string {
	return fmt.Sprintf("[Web search is not available for %s; answering without it.]\n\n", model)
}

// LastUserQuery returns the newest user message content, used as the search
// query surfaced on SearchStart events.
func LastUserQuery(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
