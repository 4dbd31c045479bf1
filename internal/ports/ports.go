// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the application core and external
// adapters (infrastructure). Vendor adapters, the durable history store, the
// credential source and the event bus all plug in through the interfaces here, so
// the orchestrator and the executor never depend on a concrete implementation.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., Adapter, HistoryRepository)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: Application depends on abstractions, not implementations
package ports

import (
	"context"

	"github.com/doeshing/multiprompt/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.multiprompt/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// ConfigSaver persists configuration changes made at runtime (enable/disable).
type ConfigSaver interface {
	Save(context.Context, domain.Config) error
}

// Adapter is the normalized contract every LLM provider implementation satisfies.
//
// Catalog lookups (SupportsCapability, ContextLength, Pricing) are pure and never fail:
// unknown model ids report false. Every error leaving GenerateText, StreamText or
// GenerateImage is a *domain.AdapterError.
type Adapter interface {
	ID() string
	Name() string
	Description() string

	Models(ctx context.Context) []domain.ModelInfo
	ValidateAPIKey(ctx context.Context, apiKey string) bool

	SupportsCapability(modelID string, capability domain.Capability) bool
	ContextLength(modelID string) (int, bool)
	Pricing(modelID string) (domain.Pricing, bool)

	GenerateText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (domain.TextResponse, error)
	StreamText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (ChunkStream, error)
	GenerateImage(ctx context.Context, prompt string, opts domain.ImageOptions, apiKey string) (domain.ImageResponse, error)

	// ConfigSchema returns nil when the adapter declares no configurable settings.
	ConfigSchema() *domain.ProviderConfigSchema
}

// ModelRefresher is implemented by adapters whose catalog comes from a live source.
type ModelRefresher interface {
	RefreshModels(ctx context.Context, apiKey string) error
}

// ChunkStream is a single-reader sequence of chunks ending in one terminal chunk.
// Next returns io.EOF after the terminal chunk has been delivered.
type ChunkStream interface {
	Next(ctx context.Context) (domain.Chunk, error)
	Close() error
}

// AdapterFactory builds a fresh adapter instance.
type AdapterFactory func() (Adapter, error)

// AdapterRegistry resolves provider ids to adapters.
type AdapterRegistry interface {
	Create(id string) (Adapter, error)
	ProviderIDs() []string
	AllProviders() []domain.ProviderDescriptor
}

// CredentialProvider is the only way the core reads API keys.
type CredentialProvider interface {
	SafeAPIKey(ctx context.Context, providerID string) domain.CredentialResult
}

// HistoryRepository is the durable record store for entries and responses.
// Durable ids are assigned by the store on create.
type HistoryRepository interface {
	CreateEntry(ctx context.Context, entry domain.PromptEntry) (int64, error)
	UpdateEntryStatus(ctx context.Context, durableID int64, status domain.EntryStatus) error
	UpdateEntryTargets(ctx context.Context, durableID int64, providers, models []string) error
	CreateResponse(ctx context.Context, entryDurableID int64, resp domain.PromptResponse) (int64, error)
	UpdateResponse(ctx context.Context, durableID int64, resp domain.PromptResponse) error
	// DeleteEntry removes the entry and all its responses in one transaction.
	DeleteEntry(ctx context.Context, durableID int64) error
	ListEntries(ctx context.Context, query domain.HistoryQuery) ([]domain.StoredEntry, error)
}

// SettingsStore is a generic key to value store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// CatalogCache keeps the last catalog a live refresh returned, per provider.
type CatalogCache interface {
	Get(providerID string) (domain.CatalogSnapshot, bool, error)
	Set(snapshot domain.CatalogSnapshot) error
}

// EventPublisher fans out state changes to interested listeners (CLI, SSE clients).
type EventPublisher interface {
	Publish(event domain.Event)
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
