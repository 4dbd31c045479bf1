package ai

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

// ErrUnknownProvider indicates the requested provider id is not registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Registry maps provider ids to adapter factories.
// It holds no request state and is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ports.AdapterFactory
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ports.AdapterFactory)}
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id string, factory ports.AdapterFactory) {
	r.mu.Lock()
	r.factories[id] = factory
	r.mu.Unlock()
}

// Create builds a fresh adapter for id.
func (r *Registry) Create(id string) (ports.Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	adapter, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create adapter %s: %w", id, err)
	}
	return adapter, nil
}

// ProviderIDs lists registered ids in sorted order.
func (r *Registry) ProviderIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllProviders describes every provider whose factory succeeds.
func (r *Registry) AllProviders() []domain.ProviderDescriptor {
	var out []domain.ProviderDescriptor
	for _, id := range r.ProviderIDs() {
		adapter, err := r.Create(id)
		if err != nil {
			continue
		}
		out = append(out, domain.ProviderDescriptor{
			ID:          adapter.ID(),
			Name:        adapter.Name(),
			Description: adapter.Description(),
		})
	}
	return out
}

var _ ports.AdapterRegistry = (*Registry)(nil)
