package ai

import (
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

type providerKind string

const (
	kindOpenAI           providerKind = "openai"
	kindOpenAICompatible providerKind = "openai-compatible"
	kindAnthropic        providerKind = "anthropic"
	kindOllama           providerKind = "ollama"
	kindOffline          providerKind = "offline"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
	offlineWordDelay       = 20 * time.Millisecond
)

// Factory builds adapters for the providers declared in config.
// It keeps one HTTP client shared by all adapters.
type Factory struct {
	httpClient *http.Client
}

// NewFactory creates a factory with a pooled HTTP client.
func NewFactory() *Factory {
	return &Factory{httpClient: newHTTPClient()}
}

// NewFactoryWithClient creates a factory around an existing client.
func NewFactoryWithClient(client *http.Client) *Factory {
	return &Factory{httpClient: client}
}

// RegisterConfigured registers one factory per configured provider, enabled or not.
// The offline provider is always registered.
func (f *Factory) RegisterConfigured(cfg domain.Config, registry *Registry) {
	for _, settings := range cfg.Providers {
		registry.Register(settings.ID, f.adapterFactory(settings))
	}
	if !cfg.HasProvider(string(kindOffline)) {
		registry.Register(string(kindOffline), func() (ports.Adapter, error) {
			return NewOffline(offlineWordDelay), nil
		})
	}
}

func (f *Factory) adapterFactory(settings domain.ProviderSettings) ports.AdapterFactory {
	kind := inferProviderKind(settings.ID, settings.Endpoint)
	client := f.httpClient

	return func() (ports.Adapter, error) {
		switch kind {
		case kindAnthropic:
			return NewAnthropic(settings.Endpoint, client), nil
		case kindOllama:
			return NewOllama(settings.Endpoint, client), nil
		case kindOffline:
			return NewOffline(offlineWordDelay), nil
		case kindOpenAI:
			return NewOpenAI(OpenAIOptions{
				Endpoint:     settings.Endpoint,
				Organization: lookupEnv(settings.OrgEnvVar),
			}, client), nil
		default:
			return NewOpenAI(OpenAIOptions{
				ID:          settings.ID,
				Name:        settings.ID,
				Description: "OpenAI-compatible endpoint " + settings.Endpoint,
				Endpoint:    settings.Endpoint,
				Compatible:  true,
			}, client), nil
		}
	}
}

// aliased registers an adapter kind under the configured id, so an Ollama server
// configured as "local" reports and translates errors as "local".
func aliased(adapter ports.Adapter, id string) ports.Adapter {
	if r, ok := adapter.(renamer); ok && id != "" && id != adapter.ID() {
		r.rename(id)
	}
	return adapter
}

func inferProviderKind(id, endpoint string) providerKind {
	idLower := strings.ToLower(id)

	switch {
	case idLower == "anthropic" || strings.Contains(endpoint, "anthropic.com"):
		return kindAnthropic
	case idLower == "offline":
		return kindOffline
	case idLower == "ollama" || strings.Contains(endpoint, "11434"):
		return kindOllama
	case idLower == "openai" && (endpoint == "" || strings.Contains(endpoint, "openai.com")):
		return kindOpenAI
	default:
		return kindOpenAICompatible
	}
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
