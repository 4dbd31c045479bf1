// Package orchestrator is the single entry point callers use to reach LLM
// providers. It resolves provider ids to cached adapters, merges saved
// per-provider settings into call options, retries transient failures and
// answers catalog and health questions without ever panicking the caller.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/stream"
	"github.com/doeshing/multiprompt/internal/ports"
)

// Options tunes retry behavior and catalog caching.
type Options struct {
	// RetryAttempts is the number of retries after the first call.
	RetryAttempts int
	RetryDelay    time.Duration
	// Catalog remembers refreshed catalogs; nil disables the fallback.
	Catalog ports.CatalogCache
}

// OptionsFromConfig reads retry settings from the execution section.
func OptionsFromConfig(cfg domain.Config) Options {
	return Options{RetryAttempts: cfg.GetRetryAttempts(), RetryDelay: cfg.GetRetryDelay()}
}

type registration struct {
	enabled bool
	adapter ports.Adapter
	lastErr error
}

// ProviderStatus is one row of the provider listing.
type ProviderStatus struct {
	domain.ProviderDescriptor
	Enabled   bool   `json:"enabled"`
	LastError string `json:"last_error,omitempty"`
}

// Service orchestrates adapter calls.
type Service struct {
	registry    ports.AdapterRegistry
	credentials ports.CredentialProvider
	settings    ports.SettingsStore
	logger      ports.Logger
	opts        Options

	// sleep waits between retries; replaced in tests.
	sleep func(context.Context, time.Duration) error

	mu            sync.Mutex
	registrations map[string]*registration
}

// New builds a service over every provider the registry knows. Providers listed in
// cfg take their enabled flag from it; providers the config does not mention start enabled.
func New(
	cfg domain.Config,
	registry ports.AdapterRegistry,
	credentials ports.CredentialProvider,
	settings ports.SettingsStore,
	logger ports.Logger,
	opts Options,
) *Service {
	s := &Service{
		registry:      registry,
		credentials:   credentials,
		settings:      settings,
		logger:        logger,
		opts:          opts,
		sleep:         sleepContext,
		registrations: make(map[string]*registration),
	}
	for _, id := range registry.ProviderIDs() {
		enabled := true
		if declared, ok := cfg.FindProvider(id); ok {
			enabled = declared.Enabled
		}
		s.registrations[id] = &registration{enabled: enabled}
	}
	return s
}

// resolve returns the cached adapter for id, creating it on first use.
func (s *Service) resolve(id string) (ports.Adapter, *domain.AdapterError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[id]
	if !ok {
		return nil, domain.NewAdapterError(id, domain.ErrCodeNotFound, fmt.Sprintf("provider %s is not registered", id))
	}
	if !reg.enabled {
		return nil, domain.NewAdapterError(id, domain.ErrCodeUnsupportedOperation, fmt.Sprintf("provider %s is disabled", id)).
			WithStatus(http.StatusForbidden)
	}
	if reg.adapter != nil {
		return reg.adapter, nil
	}

	adapter, err := s.registry.Create(id)
	if err != nil {
		reg.lastErr = err
		return nil, domain.WrapAdapterError(id, domain.ErrCodeUnknown, fmt.Sprintf("create adapter: %v", err), err)
	}
	reg.adapter = adapter
	reg.lastErr = nil
	s.logger.Debug("adapter created", map[string]interface{}{"provider": id})
	return adapter, nil
}

// apiKey asks the credential collaborator for a key. A failed lookup yields an empty
// key so the adapter's own pre-flight decides whether one was needed; the user
// message is kept to explain a resulting missing_credential error.
func (s *Service) apiKey(ctx context.Context, providerID string) (string, string) {
	result := s.credentials.SafeAPIKey(ctx, providerID)
	if !result.Success {
		return "", result.UserMessage
	}
	return result.APIKey, ""
}

func explainCredential(err *domain.AdapterError, hint string) *domain.AdapterError {
	if err == nil || hint == "" || err.Code != domain.ErrCodeMissingCredential {
		return err
	}
	out := *err
	out.Message = err.Message + ": " + hint
	return &out
}

// GenerateText runs one text generation. When opts.Stream is set the adapter is called in
// streaming mode and the stream is collected; only establishing the stream is retried.
func (s *Service) GenerateText(ctx context.Context, providerID, prompt string, opts domain.GenerationOptions) domain.ExecutionResult[domain.TextResponse] {
	start := time.Now()
	result := domain.ExecutionResult[domain.TextResponse]{ProviderID: providerID, ModelID: opts.Model}

	adapter, rerr := s.resolve(providerID)
	if rerr != nil {
		return fail(result, rerr, start)
	}
	key, hint := s.apiKey(ctx, providerID)
	merged := s.mergeText(ctx, providerID, adapter, opts)

	if merged.Stream {
		chunks, err := withRetry(ctx, s, providerID, func(ctx context.Context) (ports.ChunkStream, error) {
			return adapter.StreamText(ctx, prompt, merged, key)
		})
		if err != nil {
			return fail(result, explainCredential(err, hint), start)
		}
		defer chunks.Close()
		resp, collectErr := stream.Collect(ctx, chunks)
		if collectErr != nil {
			result.Data = resp
			return fail(result, domain.AsAdapterError(providerID, collectErr), start)
		}
		return succeed(result, resp, start)
	}

	resp, err := withRetry(ctx, s, providerID, func(ctx context.Context) (domain.TextResponse, error) {
		return adapter.GenerateText(ctx, prompt, merged, key)
	})
	if err != nil {
		return fail(result, explainCredential(err, hint), start)
	}
	return succeed(result, resp, start)
}

// StreamText establishes a stream. The caller owns the returned stream and must Close it.
// Duration covers establishment only.
func (s *Service) StreamText(ctx context.Context, providerID, prompt string, opts domain.GenerationOptions) domain.ExecutionResult[ports.ChunkStream] {
	start := time.Now()
	result := domain.ExecutionResult[ports.ChunkStream]{ProviderID: providerID, ModelID: opts.Model}

	adapter, rerr := s.resolve(providerID)
	if rerr != nil {
		return fail(result, rerr, start)
	}
	key, hint := s.apiKey(ctx, providerID)
	merged := s.mergeText(ctx, providerID, adapter, opts)
	merged.Stream = true

	chunks, err := withRetry(ctx, s, providerID, func(ctx context.Context) (ports.ChunkStream, error) {
		return adapter.StreamText(ctx, prompt, merged, key)
	})
	if err != nil {
		return fail(result, explainCredential(err, hint), start)
	}
	return succeed(result, chunks, start)
}

// GenerateImage runs one image generation with the image sub-tree of the saved settings.
func (s *Service) GenerateImage(ctx context.Context, providerID, prompt string, opts domain.ImageOptions) domain.ExecutionResult[domain.ImageResponse] {
	start := time.Now()
	result := domain.ExecutionResult[domain.ImageResponse]{ProviderID: providerID, ModelID: opts.Model}

	adapter, rerr := s.resolve(providerID)
	if rerr != nil {
		return fail(result, rerr, start)
	}
	key, hint := s.apiKey(ctx, providerID)
	merged := s.mergeImage(ctx, providerID, adapter, opts)

	resp, err := withRetry(ctx, s, providerID, func(ctx context.Context) (domain.ImageResponse, error) {
		return adapter.GenerateImage(ctx, prompt, merged, key)
	})
	if err != nil {
		return fail(result, explainCredential(err, hint), start)
	}
	return succeed(result, resp, start)
}

// SupportsCapability never fails; unknown or disabled providers report false.
func (s *Service) SupportsCapability(providerID, modelID string, capability domain.Capability) bool {
	adapter, err := s.resolve(providerID)
	if err != nil {
		s.logger.Debug("capability query on unavailable provider", map[string]interface{}{"provider": providerID, "error": err.Error()})
		return false
	}
	return adapter.SupportsCapability(modelID, capability)
}

// ContextLength never fails; unknown providers or models report false.
func (s *Service) ContextLength(providerID, modelID string) (int, bool) {
	adapter, err := s.resolve(providerID)
	if err != nil {
		return 0, false
	}
	return adapter.ContextLength(modelID)
}

// Pricing never fails; unknown providers or models report false.
func (s *Service) Pricing(providerID, modelID string) (domain.Pricing, bool) {
	adapter, err := s.resolve(providerID)
	if err != nil {
		return domain.Pricing{}, false
	}
	return adapter.Pricing(modelID)
}

// Models returns a provider's catalog, refreshing live catalogs first when possible.
func (s *Service) Models(ctx context.Context, providerID string) ([]domain.ModelInfo, error) {
	adapter, rerr := s.resolve(providerID)
	if rerr != nil {
		return nil, rerr
	}
	refresher, ok := adapter.(ports.ModelRefresher)
	if !ok {
		return adapter.Models(ctx), nil
	}

	key, _ := s.apiKey(ctx, providerID)
	if err := refresher.RefreshModels(ctx, key); err != nil {
		s.logger.Warn("model refresh failed", map[string]interface{}{"provider": providerID, "error": err.Error()})
		if models := adapter.Models(ctx); len(models) > 0 {
			return models, nil
		}
		if cached, ok := s.cachedCatalog(providerID); ok {
			return cached, nil
		}
		return nil, domain.AsAdapterError(providerID, err)
	}

	models := adapter.Models(ctx)
	s.rememberCatalog(providerID, models)
	return models, nil
}

// cachedCatalog returns the last refreshed catalog, if any was stored.
func (s *Service) cachedCatalog(providerID string) ([]domain.ModelInfo, bool) {
	if s.opts.Catalog == nil {
		return nil, false
	}
	snapshot, ok, err := s.opts.Catalog.Get(providerID)
	if err != nil {
		s.logger.Warn("catalog cache read failed", map[string]interface{}{"provider": providerID, "error": err.Error()})
		return nil, false
	}
	if !ok || len(snapshot.Models) == 0 {
		return nil, false
	}
	s.logger.Debug("serving cached catalog", map[string]interface{}{"provider": providerID, "fetched_at": snapshot.FetchedAt})
	return snapshot.Models, true
}

func (s *Service) rememberCatalog(providerID string, models []domain.ModelInfo) {
	if s.opts.Catalog == nil || len(models) == 0 {
		return
	}
	snapshot := domain.CatalogSnapshot{ProviderID: providerID, Models: models, FetchedAt: time.Now()}
	if err := s.opts.Catalog.Set(snapshot); err != nil {
		s.logger.Warn("catalog cache write failed", map[string]interface{}{"provider": providerID, "error": err.Error()})
	}
}

// AllModels lists the catalogs of every enabled provider, sorted by provider id.
// Providers are queried concurrently; a failure is reported in its row only.
func (s *Service) AllModels(ctx context.Context) []domain.ProviderModels {
	ids := s.enabledIDs()
	out := make([]domain.ProviderModels, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			row := domain.ProviderModels{Provider: s.descriptor(id)}
			models, err := s.Models(ctx, id)
			if err != nil {
				row.Error = err.Error()
			}
			row.Models = models
			out[i] = row
		}(i, id)
	}
	wg.Wait()
	return out
}

// Providers lists every registered provider with its enabled flag.
func (s *Service) Providers() []ProviderStatus {
	s.mu.Lock()
	ids := make([]string, 0, len(s.registrations))
	for id := range s.registrations {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	descriptors := make(map[string]domain.ProviderDescriptor)
	for _, d := range s.registry.AllProviders() {
		descriptors[d.ID] = d
	}

	out := make([]ProviderStatus, 0, len(ids))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		reg := s.registrations[id]
		status := ProviderStatus{ProviderDescriptor: descriptors[id], Enabled: reg.enabled}
		status.ID = id
		if reg.lastErr != nil {
			status.LastError = reg.lastErr.Error()
		}
		out = append(out, status)
	}
	return out
}

// SetEnabled toggles a provider. Disabling keeps the cached adapter for later re-enable.
func (s *Service) SetEnabled(providerID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[providerID]
	if !ok {
		return domain.NewAdapterError(providerID, domain.ErrCodeNotFound, fmt.Sprintf("provider %s is not registered", providerID))
	}
	reg.enabled = enabled
	return nil
}

// IsEnabled reports whether a provider is registered and enabled.
func (s *Service) IsEnabled(providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[providerID]
	return ok && reg.enabled
}

func (s *Service) enabledIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.registrations))
	for id, reg := range s.registrations {
		if reg.enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) descriptor(id string) domain.ProviderDescriptor {
	adapter, err := s.resolve(id)
	if err != nil {
		return domain.ProviderDescriptor{ID: id, Name: id}
	}
	return domain.ProviderDescriptor{ID: adapter.ID(), Name: adapter.Name(), Description: adapter.Description()}
}

func fail[T any](result domain.ExecutionResult[T], err *domain.AdapterError, start time.Time) domain.ExecutionResult[T] {
	result.Success = false
	result.Err = err
	result.Duration = time.Since(start)
	return result
}

func succeed[T any](result domain.ExecutionResult[T], data T, start time.Time) domain.ExecutionResult[T] {
	result.Success = true
	result.Data = data
	result.Duration = time.Since(start)
	return result
}
