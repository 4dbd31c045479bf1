// Package domain defines core business entities and value objects for multiprompt.
//
// This file contains the model catalog types adapters declare. The domain layer is
// independent of infrastructure concerns and represents pure data structures plus the
// small amount of behavior that belongs to them.
package domain

import "time"

// Capability names a generation feature a model may declare.
type Capability string

const (
	CapabilityTextGeneration  Capability = "text_generation"
	CapabilityImageGeneration Capability = "image_generation"
	CapabilityStreaming       Capability = "streaming"
)

// Capabilities is the capability set declared for one model.
type Capabilities struct {
	TextGeneration  bool `json:"text_generation" yaml:"text_generation"`
	ImageGeneration bool `json:"image_generation" yaml:"image_generation"`
	Streaming       bool `json:"streaming" yaml:"streaming"`
	// ContextLength is zero when the vendor does not publish one.
	ContextLength int `json:"context_length,omitempty" yaml:"context_length,omitempty"`
}

// Pricing is expressed in USD per 1K tokens.
type Pricing struct {
	InputCostPer1K  float64 `json:"input_cost_per_1k"`
	OutputCostPer1K float64 `json:"output_cost_per_1k"`
}

// ModelInfo describes one model in an adapter's catalog.
// Values are immutable once declared; adapters hand out copies.
type ModelInfo struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
	Pricing      *Pricing     `json:"pricing,omitempty"`
}

// Supports reports whether the model declares the capability.
func (m ModelInfo) Supports(capability Capability) bool {
	switch capability {
	case CapabilityTextGeneration:
		return m.Capabilities.TextGeneration
	case CapabilityImageGeneration:
		return m.Capabilities.ImageGeneration
	case CapabilityStreaming:
		return m.Capabilities.Streaming
	default:
		return false
	}
}

// EstimateCost returns the USD cost of the given usage, or zero when the model has no pricing.
func (m ModelInfo) EstimateCost(usage Usage) float64 {
	if m.Pricing == nil {
		return 0
	}
	return float64(usage.PromptTokens)/1000*m.Pricing.InputCostPer1K +
		float64(usage.CompletionTokens)/1000*m.Pricing.OutputCostPer1K
}

// ProviderDescriptor identifies a provider for discovery listings.
type ProviderDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ProviderModels groups a provider's catalog for listings.
type ProviderModels struct {
	Provider ProviderDescriptor `json:"provider"`
	Models   []ModelInfo        `json:"models"`
	Error    string             `json:"error,omitempty"`
}

// CatalogSnapshot is a provider catalog as last fetched from the vendor.
type CatalogSnapshot struct {
	ProviderID string      `json:"provider_id"`
	Models     []ModelInfo `json:"models"`
	FetchedAt  time.Time   `json:"fetched_at"`
}
