package domain

import (
	"fmt"
	"strings"
	"time"
)

// FindProvider searches for a provider by id.
// Returns the provider settings and true if found, empty settings and false otherwise.
func (c *Config) FindProvider(id string) (ProviderSettings, bool) {
	for _, provider := range c.Providers {
		if provider.ID == id {
			return provider, true
		}
	}
	return ProviderSettings{}, false
}

// HasProvider checks if a provider with the given id exists in the configuration
func (c *Config) HasProvider(id string) bool {
	_, exists := c.FindProvider(id)
	return exists
}

// EnabledProviders returns the ids of providers marked enabled, in config order
func (c *Config) EnabledProviders() []string {
	var ids []string
	for _, provider := range c.Providers {
		if provider.Enabled {
			ids = append(ids, provider.ID)
		}
	}
	return ids
}

// SetProviderEnabled flips the enabled flag of a provider
// Returns an error if the provider is not configured
func (c *Config) SetProviderEnabled(id string, enabled bool) error {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			c.Providers[i].Enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("provider %s not found", id)
}

// AddProvider adds a new provider to the configuration
// Returns an error if a provider with the same id already exists
func (c *Config) AddProvider(provider ProviderSettings) error {
	if c.HasProvider(provider.ID) {
		return fmt.Errorf("provider with id %s already exists", provider.ID)
	}

	c.Providers = append(c.Providers, provider)
	return nil
}

// RemoveProvider removes a provider and any default targets that reference it
func (c *Config) RemoveProvider(id string) error {
	indexToRemove := -1
	for i, provider := range c.Providers {
		if provider.ID == id {
			indexToRemove = i
			break
		}
	}

	if indexToRemove == -1 {
		return fmt.Errorf("provider %s not found", id)
	}

	c.Providers = append(c.Providers[:indexToRemove], c.Providers[indexToRemove+1:]...)
	c.removeDefaultTargetsFor(id)
	return nil
}

func (c *Config) removeDefaultTargetsFor(id string) {
	var kept []string
	for _, raw := range c.Preferences.DefaultTargets {
		target, err := ParseTarget(raw)
		if err == nil && target.ProviderID == id {
			continue
		}
		kept = append(kept, raw)
	}
	c.Preferences.DefaultTargets = kept
}

// GetDefaultTargets parses the configured default targets
func (c *Config) GetDefaultTargets() ([]Target, error) {
	targets := make([]Target, 0, len(c.Preferences.DefaultTargets))
	for _, raw := range c.Preferences.DefaultTargets {
		target, err := ParseTarget(raw)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// GetRetryAttempts returns the number of retries after the first attempt
func (c *Config) GetRetryAttempts() int {
	if c.Execution.RetryAttempts < 0 {
		return 0
	}
	return c.Execution.RetryAttempts
}

// GetRetryDelay returns the fixed delay between attempts
func (c *Config) GetRetryDelay() time.Duration {
	return parseDurationOr(c.Execution.RetryDelay, DefaultRetryDelay)
}

// GetDebounceInterval returns the coalescing window for streaming writes
func (c *Config) GetDebounceInterval() time.Duration {
	return parseDurationOr(c.Execution.Debounce, DefaultDebounceInterval)
}

// GetTimeout returns the per-submission timeout
func (c *Config) GetTimeout() time.Duration {
	if c.Preferences.TimeoutSeconds <= 0 {
		return DefaultSubmissionTimeout
	}
	return time.Duration(c.Preferences.TimeoutSeconds) * time.Second
}

// GetHistoryRetentionDays returns the number of days to retain history, zero keeps everything
func (c *Config) GetHistoryRetentionDays() int {
	if c.History.RetentionDays < 0 {
		return 0
	}
	return c.History.RetentionDays
}

// GetListenAddress returns the HTTP API listen address
func (c *Config) GetListenAddress() string {
	if c.Server.Listen == "" {
		return DefaultListenAddress
	}
	return c.Server.Listen
}

// ValidateConsistency checks the internal consistency of the configuration
func (c *Config) ValidateConsistency() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, provider := range c.Providers {
		if provider.ID == "" {
			return fmt.Errorf("provider with empty id")
		}
		if seen[provider.ID] {
			return fmt.Errorf("provider %s declared twice", provider.ID)
		}
		seen[provider.ID] = true
	}

	targets, err := c.GetDefaultTargets()
	if err != nil {
		return err
	}
	for _, target := range targets {
		if !seen[target.ProviderID] {
			return fmt.Errorf("default target %s references unknown provider", target)
		}
	}
	return nil
}

// ParseTarget parses "provider/model". The model part may itself contain slashes.
func ParseTarget(raw string) (Target, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok || provider == "" || model == "" {
		return Target{}, fmt.Errorf("invalid target %q: want provider/model", raw)
	}
	return Target{ProviderID: provider, ModelID: model}, nil
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
