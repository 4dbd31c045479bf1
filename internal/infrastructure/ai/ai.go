// Package ai provides the adapter registry and the concrete LLM provider adapters.
//
// This package translates each vendor API into the normalized ports.Adapter contract:
//   - Registry: maps provider ids to adapter factories
//   - Factory: builds the registry from the providers declared in config
//   - Adapters: OpenAI (and OpenAI-compatible endpoints), Anthropic, Ollama, and an
//     offline adapter that needs no network
//
// Every adapter owns its model catalog and its error translation table. No vendor
// error leaves this package without being turned into a *domain.AdapterError.
package ai

import (
	"fmt"
	"sync"

	"github.com/doeshing/multiprompt/internal/domain"
)

// catalog is an adapter's model list. It is replaced wholesale on refresh.
type catalog struct {
	mu     sync.RWMutex
	models []domain.ModelInfo
}

func newCatalog(models ...domain.ModelInfo) *catalog {
	return &catalog{models: models}
}

func (c *catalog) list() []domain.ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ModelInfo, len(c.models))
	copy(out, c.models)
	return out
}

func (c *catalog) lookup(id string) (domain.ModelInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, model := range c.models {
		if model.ID == id {
			return model, true
		}
	}
	return domain.ModelInfo{}, false
}

func (c *catalog) replace(models []domain.ModelInfo) {
	c.mu.Lock()
	c.models = models
	c.mu.Unlock()
}

// base implements the descriptive and catalog half of ports.Adapter.
type base struct {
	id          string
	name        string
	description string
	requiresKey bool
	catalog     *catalog
	schema      *domain.ProviderConfigSchema
}

type renamer interface {
	rename(id string)
}

func (b *base) ID() string          { return b.id }
func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.description }

func (b *base) SupportsCapability(modelID string, capability domain.Capability) bool {
	model, ok := b.catalog.lookup(modelID)
	return ok && model.Supports(capability)
}

func (b *base) ContextLength(modelID string) (int, bool) {
	model, ok := b.catalog.lookup(modelID)
	if !ok || model.Capabilities.ContextLength == 0 {
		return 0, false
	}
	return model.Capabilities.ContextLength, true
}

func (b *base) Pricing(modelID string) (domain.Pricing, bool) {
	model, ok := b.catalog.lookup(modelID)
	if !ok || model.Pricing == nil {
		return domain.Pricing{}, false
	}
	return *model.Pricing, true
}

func (b *base) ConfigSchema() *domain.ProviderConfigSchema {
	return b.schema
}

// preflight runs the checks that must pass before any network call.
func (b *base) preflight(apiKey, modelID string, capability domain.Capability) error {
	if b.requiresKey && apiKey == "" {
		return domain.NewAdapterError(b.id, domain.ErrCodeMissingCredential, "no API key configured")
	}
	model, ok := b.catalog.lookup(modelID)
	if !ok {
		return domain.NewAdapterError(b.id, domain.ErrCodeNotFound, fmt.Sprintf("unknown model %q", modelID))
	}
	if !model.Supports(capability) {
		return domain.NewAdapterError(b.id, domain.ErrCodeUnsupportedOperation,
			fmt.Sprintf("model %q does not support %s", modelID, capability))
	}
	return nil
}

func (b *base) unsupported(operation string) error {
	return domain.NewAdapterError(b.id, domain.ErrCodeUnsupportedOperation,
		fmt.Sprintf("%s is not supported by %s", operation, b.name))
}
