package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/logger"
	"github.com/doeshing/multiprompt/internal/pkg/stream"
	"github.com/doeshing/multiprompt/internal/ports"
)

// stubAdapter answers from a scripted list of errors, then succeeds.
type stubAdapter struct {
	id       string
	schema   *domain.ProviderConfigSchema
	failures []error
	calls    atomic.Int32
	valid    bool
	panics   bool

	mu       sync.Mutex
	lastOpts domain.GenerationOptions
	lastKey  string
}

func (a *stubAdapter) ID() string          { return a.id }
func (a *stubAdapter) Name() string        { return "Stub " + a.id }
func (a *stubAdapter) Description() string { return "stub" }

func (a *stubAdapter) Models(context.Context) []domain.ModelInfo {
	return []domain.ModelInfo{{
		ID:           "m1",
		Capabilities: domain.Capabilities{TextGeneration: true, Streaming: true, ContextLength: 4096},
		Pricing:      &domain.Pricing{InputCostPer1K: 1, OutputCostPer1K: 2},
	}}
}

func (a *stubAdapter) ValidateAPIKey(context.Context, string) bool {
	if a.panics {
		panic("boom")
	}
	return a.valid
}

func (a *stubAdapter) SupportsCapability(modelID string, capability domain.Capability) bool {
	return modelID == "m1" && capability != domain.CapabilityImageGeneration
}

func (a *stubAdapter) ContextLength(modelID string) (int, bool) {
	if modelID != "m1" {
		return 0, false
	}
	return 4096, true
}

func (a *stubAdapter) Pricing(modelID string) (domain.Pricing, bool) {
	if modelID != "m1" {
		return domain.Pricing{}, false
	}
	return domain.Pricing{InputCostPer1K: 1, OutputCostPer1K: 2}, true
}

func (a *stubAdapter) next(opts domain.GenerationOptions, key string) error {
	n := int(a.calls.Add(1))
	a.mu.Lock()
	a.lastOpts = opts
	a.lastKey = key
	a.mu.Unlock()
	if n <= len(a.failures) {
		return a.failures[n-1]
	}
	return nil
}

func (a *stubAdapter) GenerateText(_ context.Context, prompt string, opts domain.GenerationOptions, key string) (domain.TextResponse, error) {
	if err := a.next(opts, key); err != nil {
		return domain.TextResponse{}, err
	}
	return domain.TextResponse{Content: "echo: " + prompt, FinishReason: "stop"}, nil
}

func (a *stubAdapter) StreamText(ctx context.Context, prompt string, opts domain.GenerationOptions, key string) (ports.ChunkStream, error) {
	if err := a.next(opts, key); err != nil {
		return nil, err
	}
	return stream.FromResponse(a.id, domain.TextResponse{Content: "streamed: " + prompt, FinishReason: "stop"}), nil
}

func (a *stubAdapter) GenerateImage(context.Context, string, domain.ImageOptions, string) (domain.ImageResponse, error) {
	return domain.ImageResponse{}, domain.NewAdapterError(a.id, domain.ErrCodeUnsupportedOperation, "no images")
}

func (a *stubAdapter) ConfigSchema() *domain.ProviderConfigSchema {
	return a.schema
}

func (a *stubAdapter) options() domain.GenerationOptions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastOpts
}

type stubRegistry struct {
	adapters map[string]ports.Adapter
	creates  atomic.Int32
}

func (r *stubRegistry) Create(id string) (ports.Adapter, error) {
	r.creates.Add(1)
	adapter, ok := r.adapters[id]
	if !ok {
		return nil, errors.New("unknown provider")
	}
	return adapter, nil
}

func (r *stubRegistry) ProviderIDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *stubRegistry) AllProviders() []domain.ProviderDescriptor {
	var out []domain.ProviderDescriptor
	for _, id := range r.ProviderIDs() {
		a := r.adapters[id]
		out = append(out, domain.ProviderDescriptor{ID: a.ID(), Name: a.Name(), Description: a.Description()})
	}
	return out
}

type stubCredentials map[string]string

func (c stubCredentials) SafeAPIKey(_ context.Context, id string) domain.CredentialResult {
	key, ok := c[id]
	if !ok {
		return domain.CredentialResult{UserMessage: "set " + id + "_KEY"}
	}
	return domain.CredentialResult{Success: true, APIKey: key}
}

type memorySettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemorySettings() *memorySettings {
	return &memorySettings{values: make(map[string]string)}
}

func (m *memorySettings) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *memorySettings) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memorySettings) DeleteSetting(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func newTestService(cfg domain.Config, retries int, adapters ...*stubAdapter) (*Service, *stubRegistry, *memorySettings) {
	registry := &stubRegistry{adapters: make(map[string]ports.Adapter)}
	creds := stubCredentials{}
	for _, a := range adapters {
		registry.adapters[a.id] = a
		creds[a.id] = "key-" + a.id
	}
	settings := newMemorySettings()
	svc := New(cfg, registry, creds, settings, logger.Nop(), Options{RetryAttempts: retries})
	svc.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return svc, registry, settings
}

// refreshingAdapter has an empty catalog until a refresh succeeds.
type refreshingAdapter struct {
	*stubAdapter
	refreshErr error

	mu     sync.Mutex
	models []domain.ModelInfo
}

func (a *refreshingAdapter) Models(context.Context) []domain.ModelInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.ModelInfo(nil), a.models...)
}

func (a *refreshingAdapter) RefreshModels(context.Context, string) error {
	if a.refreshErr != nil {
		return a.refreshErr
	}
	a.mu.Lock()
	a.models = []domain.ModelInfo{{ID: "live-1", Capabilities: domain.Capabilities{TextGeneration: true}}}
	a.mu.Unlock()
	return nil
}

type memoryCatalog struct {
	mu        sync.Mutex
	snapshots map[string]domain.CatalogSnapshot
}

func (c *memoryCatalog) Get(providerID string) (domain.CatalogSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot, ok := c.snapshots[providerID]
	return snapshot, ok, nil
}

func (c *memoryCatalog) Set(snapshot domain.CatalogSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[snapshot.ProviderID] = snapshot
	return nil
}
