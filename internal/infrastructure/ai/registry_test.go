package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

func TestRegistry_RegisterCreateOverwrite(t *testing.T) {
	registry := NewRegistry()
	registry.Register("offline", func() (ports.Adapter, error) { return NewOffline(0), nil })
	registry.Register("ollama", func() (ports.Adapter, error) { return NewOllama("", http.DefaultClient), nil })

	if diff := cmp.Diff([]string{"offline", "ollama"}, registry.ProviderIDs()); diff != "" {
		t.Errorf("ProviderIDs() mismatch (-want +got):\n%s", diff)
	}

	adapter, err := registry.Create("offline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.ID() != "offline" {
		t.Errorf("ID() = %s, want offline", adapter.ID())
	}

	registry.Register("offline", func() (ports.Adapter, error) { return nil, errors.New("replaced") })
	if _, err := registry.Create("offline"); err == nil {
		t.Error("expected the overwritten factory to be used")
	}

	if _, err := registry.Create("missing"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Create(missing) error = %v, want ErrUnknownProvider", err)
	}

	providers := registry.AllProviders()
	if len(providers) != 1 || providers[0].ID != "ollama" {
		t.Errorf("AllProviders() = %+v, want only ollama", providers)
	}
}

func TestFactory_RegisterConfigured(t *testing.T) {
	cfg := domain.Config{
		Providers: []domain.ProviderSettings{
			{ID: "openai", Enabled: true, AuthEnvVar: "OPENAI_API_KEY"},
			{ID: "anthropic", Enabled: true, AuthEnvVar: "ANTHROPIC_API_KEY"},
			{ID: "groq", Enabled: true, Endpoint: "https://api.groq.com/openai/v1", AuthEnvVar: "GROQ_API_KEY"},
		},
	}
	registry := NewRegistry()
	NewFactoryWithClient(http.DefaultClient).RegisterConfigured(cfg, registry)

	want := []string{"anthropic", "groq", "offline", "openai"}
	if diff := cmp.Diff(want, registry.ProviderIDs()); diff != "" {
		t.Errorf("ProviderIDs() mismatch (-want +got):\n%s", diff)
	}

	groq, err := registry.Create("groq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if groq.ID() != "groq" {
		t.Errorf("compatible adapter id = %s, want groq", groq.ID())
	}
	if _, ok := groq.(ports.ModelRefresher); !ok {
		t.Error("compatible adapter should refresh its catalog")
	}
}

func TestFactory_AliasedKindsKeepConfiguredID(t *testing.T) {
	cfg := domain.Config{
		Providers: []domain.ProviderSettings{
			{ID: "local", Enabled: true, Endpoint: "http://127.0.0.1:11434"},
			{ID: "claude", Enabled: true, Endpoint: "https://api.anthropic.com/v1", AuthEnvVar: "ANTHROPIC_API_KEY"},
		},
	}
	registry := NewRegistry()
	NewFactoryWithClient(http.DefaultClient).RegisterConfigured(cfg, registry)

	for _, id := range []string{"local", "claude"} {
		adapter, err := registry.Create(id)
		if err != nil {
			t.Fatalf("Create(%s) error: %v", id, err)
		}
		if adapter.ID() != id {
			t.Errorf("Create(%s).ID() = %s", id, adapter.ID())
		}
	}

	local, _ := registry.Create("local")
	if _, ok := local.(ports.ModelRefresher); !ok {
		t.Error("local should still be an Ollama adapter")
	}
}

// TestAdapters_CatalogConsistency checks that lookups agree with the declared catalog
// for every built-in adapter, and that unknown models are answered safely.
func TestAdapters_CatalogConsistency(t *testing.T) {
	adapters := []ports.Adapter{
		NewOpenAI(OpenAIOptions{}, http.DefaultClient),
		NewAnthropic("", http.DefaultClient),
		NewOllama("", http.DefaultClient),
		NewOffline(0),
	}
	capabilities := []domain.Capability{
		domain.CapabilityTextGeneration,
		domain.CapabilityImageGeneration,
		domain.CapabilityStreaming,
	}

	for _, adapter := range adapters {
		t.Run(adapter.ID(), func(t *testing.T) {
			models := adapter.Models(context.Background())
			if len(models) == 0 {
				t.Fatal("expected a non-empty catalog")
			}
			for _, model := range models {
				for _, capability := range capabilities {
					if got := adapter.SupportsCapability(model.ID, capability); got != model.Supports(capability) {
						t.Errorf("%s %s = %v, catalog says %v", model.ID, capability, got, model.Supports(capability))
					}
				}

				length, ok := adapter.ContextLength(model.ID)
				if ok != (model.Capabilities.ContextLength > 0) || length != model.Capabilities.ContextLength {
					t.Errorf("%s ContextLength() = %d, %v", model.ID, length, ok)
				}

				pricing, ok := adapter.Pricing(model.ID)
				if ok != (model.Pricing != nil) {
					t.Errorf("%s Pricing() ok = %v", model.ID, ok)
				}
				if ok && pricing != *model.Pricing {
					t.Errorf("%s Pricing() = %+v, want %+v", model.ID, pricing, *model.Pricing)
				}
			}

			for _, capability := range capabilities {
				if adapter.SupportsCapability("no-such-model", capability) {
					t.Errorf("unknown model should not support %s", capability)
				}
			}
			if _, ok := adapter.ContextLength("no-such-model"); ok {
				t.Error("unknown model should have no context length")
			}
			if _, ok := adapter.Pricing("no-such-model"); ok {
				t.Error("unknown model should have no pricing")
			}
		})
	}
}

func TestAdapters_ImageUnsupported(t *testing.T) {
	adapters := []ports.Adapter{
		NewAnthropic("", http.DefaultClient),
		NewOllama("", http.DefaultClient),
		NewOffline(0),
	}
	for _, adapter := range adapters {
		_, err := adapter.GenerateImage(context.Background(), "a cat", domain.ImageOptions{Model: "x"}, "key")
		var adapterErr *domain.AdapterError
		if !errors.As(err, &adapterErr) || adapterErr.Code != domain.ErrCodeUnsupportedOperation {
			t.Errorf("%s GenerateImage() error = %v, want unsupported_operation", adapter.ID(), err)
		}
	}
}
