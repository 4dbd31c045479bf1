package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/stream"
	"github.com/doeshing/multiprompt/internal/ports"
)

const openAIBaseURL = "https://api.openai.com/v1"

func openAIModels() []domain.ModelInfo {
	text := func(id, name string, contextLength int, in, out float64) domain.ModelInfo {
		return domain.ModelInfo{
			ID:   id,
			Name: name,
			Capabilities: domain.Capabilities{
				TextGeneration: true,
				Streaming:      true,
				ContextLength:  contextLength,
			},
			Pricing: &domain.Pricing{InputCostPer1K: in, OutputCostPer1K: out},
		}
	}
	return []domain.ModelInfo{
		text("gpt-4o", "GPT-4o", 128000, 0.0025, 0.01),
		text("gpt-4o-mini", "GPT-4o mini", 128000, 0.00015, 0.0006),
		text("gpt-4.1", "GPT-4.1", 1047576, 0.002, 0.008),
		text("gpt-4.1-mini", "GPT-4.1 mini", 1047576, 0.0004, 0.0016),
		text("o3-mini", "o3-mini", 200000, 0.0011, 0.0044),
		{
			ID:           "dall-e-3",
			Name:         "DALL-E 3",
			Description:  "Image generation",
			Capabilities: domain.Capabilities{ImageGeneration: true},
		},
		{
			ID:           "gpt-image-1",
			Name:         "GPT Image 1",
			Description:  "Image generation",
			Capabilities: domain.Capabilities{ImageGeneration: true},
		},
	}
}

// OpenAIOptions configures an OpenAI or OpenAI-compatible adapter.
type OpenAIOptions struct {
	ID          string
	Name        string
	Description string
	Endpoint    string
	// Organization is sent as the OpenAI-Organization header when set.
	Organization string
	// Compatible marks a third-party endpoint: the catalog starts empty and is
	// filled from GET /models.
	Compatible bool
}

type openAIAdapter struct {
	base
	transport *transport
	dynamic   bool
}

// NewOpenAI builds an adapter for the OpenAI chat completions and images API.
func NewOpenAI(opts OpenAIOptions, client *http.Client) ports.Adapter {
	id := valueOrDefault(opts.ID, "openai")
	models := openAIModels()
	if opts.Compatible {
		models = nil
	}
	org := opts.Organization

	return &openAIAdapter{
		base: base{
			id:          id,
			name:        valueOrDefault(opts.Name, "OpenAI"),
			description: valueOrDefault(opts.Description, "OpenAI chat completions and image generation"),
			requiresKey: true,
			catalog:     newCatalog(models...),
			schema: &domain.ProviderConfigSchema{
				Defaults: domain.ProviderConfig{
					Text:  &domain.TextDefaults{Temperature: domain.Float64(0.7), MaxTokens: domain.Int(domain.DefaultMaxTokens)},
					Image: &domain.ImageDefaults{Size: "1024x1024", Quality: "standard", Count: domain.Int(1)},
				},
				AdvancedKeys: []string{"frequency_penalty", "presence_penalty", "seed", "user"},
			},
		},
		transport: newTransport(id, valueOrDefault(opts.Endpoint, openAIBaseURL), client, func(apiKey string) http.Header {
			header := http.Header{}
			if apiKey != "" {
				header.Set("authorization", "Bearer "+apiKey)
			}
			if org != "" {
				header.Set("OpenAI-Organization", org)
			}
			return header
		}),
		dynamic: opts.Compatible,
	}
}

func (a *openAIAdapter) Models(context.Context) []domain.ModelInfo {
	return a.catalog.list()
}

func (a *openAIAdapter) ValidateAPIKey(ctx context.Context, apiKey string) bool {
	if apiKey == "" {
		return false
	}
	return a.transport.probe(ctx, "/models", apiKey)
}

// RefreshModels reloads the catalog of an OpenAI-compatible endpoint.
// The official catalog is static and carries pricing, so it is left alone.
func (a *openAIAdapter) RefreshModels(ctx context.Context, apiKey string) error {
	if !a.dynamic {
		return nil
	}
	var list modelList
	if err := a.transport.call(ctx, http.MethodGet, "/models", apiKey, nil, &list); err != nil {
		return err
	}
	models := make([]domain.ModelInfo, 0, len(list.Data))
	for _, item := range list.Data {
		models = append(models, domain.ModelInfo{
			ID:           item.ID,
			Name:         item.ID,
			Capabilities: domain.Capabilities{TextGeneration: true, Streaming: true},
		})
	}
	a.catalog.replace(models)
	return nil
}

func (a *openAIAdapter) buildChatRequest(prompt string, opts domain.GenerationOptions, streaming bool) (any, error) {
	messages, err := renderPromptMessages(prompt, opts)
	if err != nil {
		return nil, domain.WrapAdapterError(a.id, domain.ErrCodeBadRequest, "render prompt", err)
	}
	payload := chatCompletionRequest{
		Model:       opts.Model,
		Messages:    toChatMessages(messages),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	if streaming {
		payload.Stream = true
		payload.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	merged, err := mergeExtra(payload, opts.Extra)
	if err != nil {
		return nil, domain.WrapAdapterError(a.id, domain.ErrCodeBadRequest, "encode extra options", err)
	}
	return merged, nil
}

func (a *openAIAdapter) GenerateText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (domain.TextResponse, error) {
	if err := a.preflight(apiKey, opts.Model, domain.CapabilityTextGeneration); err != nil {
		return domain.TextResponse{}, err
	}
	payload, err := a.buildChatRequest(prompt, opts, false)
	if err != nil {
		return domain.TextResponse{}, err
	}

	var decoded chatCompletionResponse
	if err := a.transport.call(ctx, http.MethodPost, "/chat/completions", apiKey, payload, &decoded); err != nil {
		return domain.TextResponse{}, err
	}
	return decoded.toText(), nil
}

func (a *openAIAdapter) StreamText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (ports.ChunkStream, error) {
	if err := a.preflight(apiKey, opts.Model, domain.CapabilityTextGeneration); err != nil {
		return nil, err
	}
	payload, err := a.buildChatRequest(prompt, opts, true)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	body, err := a.transport.open(streamCtx, "/chat/completions", apiKey, payload)
	if err != nil {
		cancel()
		return nil, err
	}

	return stream.Run(streamCtx, a.id, func(ctx context.Context, emit func(string) error) (*domain.ChunkMetadata, error) {
		defer cancel()
		defer body.Close()
		closeOnDone(ctx, body)
		return a.readStream(ctx, body, opts.Model, emit)
	}), nil
}

func (a *openAIAdapter) readStream(ctx context.Context, body io.Reader, model string, emit func(string) error) (*domain.ChunkMetadata, error) {
	scanner := newSSEScanner(body)
	meta := &domain.ChunkMetadata{Model: model}
	finished := false

	for {
		event, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, transportError(a.id, err)
		}

		var chunk chatCompletionChunk
		if err := decodeJSON(event.Data, &chunk); err != nil {
			return nil, parseError(a.id, "stream chunk", err)
		}
		if chunk.Error != nil {
			return nil, vendorError(a.id, chunk.Error.Type, chunk.Error.Message)
		}
		if chunk.Model != "" {
			meta.Model = chunk.Model
		}
		if chunk.Usage != nil {
			meta.Usage = chunk.Usage.toDomain()
		}
		for _, choice := range chunk.Choices {
			if err := emit(choice.Delta.Content); err != nil {
				return nil, err
			}
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				meta.FinishReason = *choice.FinishReason
				finished = true
			}
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !scanner.done && !finished {
		return nil, domain.NewAdapterError(a.id, domain.ErrCodeParse, "stream ended before completion")
	}
	return meta, nil
}

func (a *openAIAdapter) GenerateImage(ctx context.Context, prompt string, opts domain.ImageOptions, apiKey string) (domain.ImageResponse, error) {
	if err := a.preflight(apiKey, opts.Model, domain.CapabilityImageGeneration); err != nil {
		return domain.ImageResponse{}, err
	}
	payload, err := mergeExtra(imageRequest{
		Model:   opts.Model,
		Prompt:  strings.TrimSpace(prompt),
		N:       opts.Count,
		Size:    opts.Size,
		Quality: opts.Quality,
		Style:   opts.Style,
	}, opts.Extra)
	if err != nil {
		return domain.ImageResponse{}, domain.WrapAdapterError(a.id, domain.ErrCodeBadRequest, "encode extra options", err)
	}

	var decoded imageResponse
	if err := a.transport.call(ctx, http.MethodPost, "/images/generations", apiKey, payload, &decoded); err != nil {
		return domain.ImageResponse{}, err
	}
	out := domain.ImageResponse{Images: make([]domain.GeneratedImage, 0, len(decoded.Data))}
	for _, item := range decoded.Data {
		out.Images = append(out.Images, domain.GeneratedImage{
			URL:           item.URL,
			B64JSON:       item.B64JSON,
			RevisedPrompt: item.RevisedPrompt,
		})
	}
	return out, nil
}

var (
	_ ports.Adapter        = (*openAIAdapter)(nil)
	_ ports.ModelRefresher = (*openAIAdapter)(nil)
)
