package ai

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/stream"
	"github.com/doeshing/multiprompt/internal/ports"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

func anthropicModels() []domain.ModelInfo {
	claude := func(id, name string, in, out float64) domain.ModelInfo {
		return domain.ModelInfo{
			ID:   id,
			Name: name,
			Capabilities: domain.Capabilities{
				TextGeneration: true,
				Streaming:      true,
				ContextLength:  200000,
			},
			Pricing: &domain.Pricing{InputCostPer1K: in, OutputCostPer1K: out},
		}
	}
	return []domain.ModelInfo{
		claude("claude-sonnet-4-0", "Claude Sonnet 4", 0.003, 0.015),
		claude("claude-opus-4-0", "Claude Opus 4", 0.015, 0.075),
		claude("claude-3-7-sonnet-latest", "Claude 3.7 Sonnet", 0.003, 0.015),
		claude("claude-3-5-haiku-latest", "Claude 3.5 Haiku", 0.0008, 0.004),
	}
}

type anthropicAdapter struct {
	base
	transport *transport
}

// NewAnthropic builds an adapter for the Anthropic Messages API.
func NewAnthropic(endpoint string, client *http.Client) ports.Adapter {
	return &anthropicAdapter{
		base: base{
			id:          "anthropic",
			name:        "Anthropic",
			description: "Claude models via the Messages API",
			requiresKey: true,
			catalog:     newCatalog(anthropicModels()...),
			schema: &domain.ProviderConfigSchema{
				Defaults: domain.ProviderConfig{
					Text: &domain.TextDefaults{Temperature: domain.Float64(1.0), MaxTokens: domain.Int(domain.DefaultMaxTokens)},
				},
				AdvancedKeys: []string{"top_k", "stop_sequences", "metadata"},
			},
		},
		transport: newTransport("anthropic", valueOrDefault(endpoint, anthropicBaseURL), client, func(apiKey string) http.Header {
			header := http.Header{}
			header.Set("anthropic-version", anthropicVersion)
			if apiKey != "" {
				header.Set("x-api-key", apiKey)
			}
			return header
		}),
	}
}

func (a *anthropicAdapter) rename(id string) {
	a.id = id
	a.transport.provider = id
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      *anthropicUsage    `json:"usage"`
}

func (r anthropicResponse) toText() domain.TextResponse {
	resp := domain.TextResponse{FinishReason: r.StopReason}
	for _, block := range r.Content {
		if block.Type == "text" {
			resp.Content += block.Text
		}
	}
	if r.Usage != nil {
		resp.Usage = &domain.Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		}
	}
	return resp
}

// anthropicEvent covers every streaming event shape; unused fields stay empty.
type anthropicEvent struct {
	Type    string `json:"type"`
	Message struct {
		Model string          `json:"model"`
		Usage *anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage"`
	Error *streamError    `json:"error"`
}

func (a *anthropicAdapter) Models(context.Context) []domain.ModelInfo {
	return a.catalog.list()
}

func (a *anthropicAdapter) ValidateAPIKey(ctx context.Context, apiKey string) bool {
	if apiKey == "" {
		return false
	}
	return a.transport.probe(ctx, "/models", apiKey)
}

func (a *anthropicAdapter) buildRequest(prompt string, opts domain.GenerationOptions, streaming bool) (any, error) {
	messages, err := renderPromptMessages(prompt, opts)
	if err != nil {
		return nil, domain.WrapAdapterError(a.id, domain.ErrCodeBadRequest, "render prompt", err)
	}
	system, chat := splitSystemMessages(messages)

	payload := anthropicRequest{
		Model:       opts.Model,
		MaxTokens:   intOrDefault(opts.MaxTokens, domain.DefaultMaxTokens),
		System:      system,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stream:      streaming,
	}
	for _, msg := range chat {
		payload.Messages = append(payload.Messages, anthropicMessage{
			Role:    msg.Role,
			Content: []anthropicContent{{Type: "text", Text: msg.Content}},
		})
	}
	merged, err := mergeExtra(payload, opts.Extra)
	if err != nil {
		return nil, domain.WrapAdapterError(a.id, domain.ErrCodeBadRequest, "encode extra options", err)
	}
	return merged, nil
}

func (a *anthropicAdapter) GenerateText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (domain.TextResponse, error) {
	if err := a.preflight(apiKey, opts.Model, domain.CapabilityTextGeneration); err != nil {
		return domain.TextResponse{}, err
	}
	payload, err := a.buildRequest(prompt, opts, false)
	if err != nil {
		return domain.TextResponse{}, err
	}

	var decoded anthropicResponse
	if err := a.transport.call(ctx, http.MethodPost, "/messages", apiKey, payload, &decoded); err != nil {
		return domain.TextResponse{}, err
	}
	return decoded.toText(), nil
}

func (a *anthropicAdapter) StreamText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (ports.ChunkStream, error) {
	if err := a.preflight(apiKey, opts.Model, domain.CapabilityTextGeneration); err != nil {
		return nil, err
	}
	payload, err := a.buildRequest(prompt, opts, true)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	body, err := a.transport.open(streamCtx, "/messages", apiKey, payload)
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

func (a *anthropicAdapter) readStream(ctx context.Context, body io.Reader, model string, emit func(string) error) (*domain.ChunkMetadata, error) {
	scanner := newSSEScanner(body)
	meta := &domain.ChunkMetadata{Model: model}
	usage := domain.Usage{}

	for {
		sse, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, transportError(a.id, err)
		}

		var event anthropicEvent
		if err := decodeJSON(sse.Data, &event); err != nil {
			return nil, parseError(a.id, "stream event", err)
		}

		switch event.Type {
		case "message_start":
			if event.Message.Model != "" {
				meta.Model = event.Message.Model
			}
			if event.Message.Usage != nil {
				usage.PromptTokens = event.Message.Usage.InputTokens
			}
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				if err := emit(event.Delta.Text); err != nil {
					return nil, err
				}
			}
		case "message_delta":
			if event.Delta.StopReason != "" {
				meta.FinishReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				usage.CompletionTokens = event.Usage.OutputTokens
			}
		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			meta.Usage = &usage
			return meta, nil
		case "error":
			if event.Error != nil {
				return nil, vendorError(a.id, event.Error.Type, event.Error.Message)
			}
			return nil, domain.NewAdapterError(a.id, domain.ErrCodeUnknown, "stream error")
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, domain.NewAdapterError(a.id, domain.ErrCodeParse, "stream ended before message_stop")
}

func (a *anthropicAdapter) GenerateImage(context.Context, string, domain.ImageOptions, string) (domain.ImageResponse, error) {
	return domain.ImageResponse{}, a.unsupported("image generation")
}

var _ ports.Adapter = (*anthropicAdapter)(nil)
