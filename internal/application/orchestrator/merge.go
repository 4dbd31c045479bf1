package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

const providerConfigPrefix = "provider_config:"

func providerConfigKey(providerID string) string {
	return providerConfigPrefix + providerID
}

// savedConfig loads the saved settings for a provider. Unreadable settings are logged
// and treated as absent so a corrupt row never blocks a call.
func (s *Service) savedConfig(ctx context.Context, providerID string) (domain.ProviderConfig, bool) {
	if s.settings == nil {
		return domain.ProviderConfig{}, false
	}
	raw, ok, err := s.settings.GetSetting(ctx, providerConfigKey(providerID))
	if err != nil {
		s.logger.Warn("load provider config failed", map[string]interface{}{"provider": providerID, "error": err.Error()})
		return domain.ProviderConfig{}, false
	}
	if !ok {
		return domain.ProviderConfig{}, false
	}
	var cfg domain.ProviderConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		s.logger.Warn("decode provider config failed", map[string]interface{}{"provider": providerID, "error": err.Error()})
		return domain.ProviderConfig{}, false
	}
	return cfg, true
}

// effective returns schema defaults overlaid with saved settings, or false when
// either is missing and options should pass through untouched. Settings are keyed
// by the registered provider id, which may differ from the adapter kind.
func (s *Service) effective(ctx context.Context, providerID string, adapter ports.Adapter) (domain.ProviderConfig, bool) {
	schema := adapter.ConfigSchema()
	if schema == nil {
		return domain.ProviderConfig{}, false
	}
	saved, ok := s.savedConfig(ctx, providerID)
	if !ok {
		return domain.ProviderConfig{}, false
	}
	return schema.Defaults.Overlay(saved), true
}

// mergeText fills options the caller left unset. Caller values win over saved
// settings, which win over schema defaults.
func (s *Service) mergeText(ctx context.Context, providerID string, adapter ports.Adapter, opts domain.GenerationOptions) domain.GenerationOptions {
	cfg, ok := s.effective(ctx, providerID, adapter)
	if !ok {
		return opts
	}
	out := opts.Clone()
	if text := cfg.Text; text != nil {
		if out.Temperature == nil {
			out.Temperature = text.Temperature
		}
		if out.MaxTokens == nil {
			out.MaxTokens = text.MaxTokens
		}
		if out.TopP == nil {
			out.TopP = text.TopP
		}
		if out.SystemPrompt == "" {
			out.SystemPrompt = text.SystemPrompt
		}
	}
	out.Extra = fillExtra(out.Extra, cfg.Advanced)
	return out
}

// mergeImage is mergeText for the image sub-tree.
func (s *Service) mergeImage(ctx context.Context, providerID string, adapter ports.Adapter, opts domain.ImageOptions) domain.ImageOptions {
	cfg, ok := s.effective(ctx, providerID, adapter)
	if !ok {
		return opts
	}
	out := opts.Clone()
	if image := cfg.Image; image != nil {
		if out.Size == "" {
			out.Size = image.Size
		}
		if out.Quality == "" {
			out.Quality = image.Quality
		}
		if out.Style == "" {
			out.Style = image.Style
		}
		if out.Count == nil {
			out.Count = image.Count
		}
	}
	out.Extra = fillExtra(out.Extra, cfg.Advanced)
	return out
}

func fillExtra(extra map[string]any, advanced map[string]any) map[string]any {
	if len(advanced) == 0 {
		return extra
	}
	if extra == nil {
		extra = make(map[string]any, len(advanced))
	}
	for k, v := range advanced {
		if _, set := extra[k]; !set {
			extra[k] = v
		}
	}
	return extra
}

// ProviderConfigView is what callers see of a provider's settings.
type ProviderConfigView struct {
	Saved        *domain.ProviderConfig `json:"saved,omitempty"`
	Effective    domain.ProviderConfig  `json:"effective"`
	AdvancedKeys []string               `json:"advanced_keys,omitempty"`
}

// ProviderConfig returns the saved settings and the effective merge with schema defaults.
func (s *Service) ProviderConfig(ctx context.Context, providerID string) (ProviderConfigView, error) {
	_, schema, err := s.configurable(providerID)
	if err != nil {
		return ProviderConfigView{}, err
	}
	view := ProviderConfigView{Effective: schema.Defaults, AdvancedKeys: schema.AdvancedKeys}
	if saved, ok := s.savedConfig(ctx, providerID); ok {
		view.Saved = &saved
		view.Effective = schema.Defaults.Overlay(saved)
	}
	return view, nil
}

// SaveProviderConfig stores settings for a provider. Advanced keys must be declared by the adapter.
func (s *Service) SaveProviderConfig(ctx context.Context, providerID string, cfg domain.ProviderConfig) error {
	_, schema, err := s.configurable(providerID)
	if err != nil {
		return err
	}
	if unknown := undeclaredKeys(cfg.Advanced, schema.AdvancedKeys); len(unknown) > 0 {
		return domain.NewAdapterError(providerID, domain.ErrCodeBadRequest,
			fmt.Sprintf("unknown advanced settings %v (allowed: %v)", unknown, schema.AdvancedKeys))
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode provider config: %w", err)
	}
	if err := s.settings.SetSetting(ctx, providerConfigKey(providerID), string(raw)); err != nil {
		return fmt.Errorf("save provider config: %w", err)
	}
	s.logger.Info("provider config saved", map[string]interface{}{"provider": providerID})
	return nil
}

// ResetProviderConfig removes saved settings so schema defaults apply again.
func (s *Service) ResetProviderConfig(ctx context.Context, providerID string) error {
	if _, _, err := s.configurable(providerID); err != nil {
		return err
	}
	if err := s.settings.DeleteSetting(ctx, providerConfigKey(providerID)); err != nil {
		return fmt.Errorf("reset provider config: %w", err)
	}
	return nil
}

// configurable resolves a provider for settings management. Disabled providers may be configured.
func (s *Service) configurable(providerID string) (ports.Adapter, *domain.ProviderConfigSchema, error) {
	if s.settings == nil {
		return nil, nil, fmt.Errorf("no settings store configured")
	}
	adapter, err := s.adapterIgnoringEnabled(providerID)
	if err != nil {
		return nil, nil, err
	}
	schema := adapter.ConfigSchema()
	if schema == nil {
		return nil, nil, domain.NewAdapterError(providerID, domain.ErrCodeUnsupportedOperation,
			"provider declares no configurable settings").WithStatus(http.StatusBadRequest)
	}
	return adapter, schema, nil
}

func (s *Service) adapterIgnoringEnabled(providerID string) (ports.Adapter, error) {
	s.mu.Lock()
	reg, ok := s.registrations[providerID]
	if !ok {
		s.mu.Unlock()
		return nil, domain.NewAdapterError(providerID, domain.ErrCodeNotFound, fmt.Sprintf("provider %s is not registered", providerID))
	}
	enabled := reg.enabled
	s.mu.Unlock()

	if enabled {
		adapter, err := s.resolve(providerID)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	}
	return s.registry.Create(providerID)
}

func undeclaredKeys(advanced map[string]any, allowed []string) []string {
	permitted := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		permitted[key] = struct{}{}
	}
	var unknown []string
	for key := range advanced {
		if _, ok := permitted[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}
