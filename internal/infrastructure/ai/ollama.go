package ai

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/stream"
	"github.com/doeshing/multiprompt/internal/ports"
)

const ollamaBaseURL = "http://localhost:11434"

func ollamaModel(id string) domain.ModelInfo {
	return domain.ModelInfo{
		ID:           id,
		Name:         id,
		Description:  "Local model served by Ollama",
		Capabilities: domain.Capabilities{TextGeneration: true, Streaming: true},
	}
}

type ollamaAdapter struct {
	base
	transport *transport
}

// NewOllama builds an adapter for a local Ollama server. No API key is required;
// the catalog is refreshed from /api/tags.
func NewOllama(endpoint string, client *http.Client) ports.Adapter {
	return &ollamaAdapter{
		base: base{
			id:          "ollama",
			name:        "Ollama",
			description: "Local models served by Ollama",
			catalog:     newCatalog(ollamaModel("llama3.2"), ollamaModel("mistral"), ollamaModel("qwen2.5")),
			schema: &domain.ProviderConfigSchema{
				Defaults: domain.ProviderConfig{
					Text: &domain.TextDefaults{Temperature: domain.Float64(0.8)},
				},
				AdvancedKeys: []string{"num_ctx", "seed", "keep_alive"},
			},
		},
		transport: newTransport("ollama", valueOrDefault(endpoint, ollamaBaseURL), client, nil),
	}
}

func (a *ollamaAdapter) rename(id string) {
	a.id = id
	a.transport.provider = id
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	NumCtx      any      `json:"num_ctx,omitempty"`
	Seed        any      `json:"seed,omitempty"`
}

type ollamaChatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	Options   ollamaOptions `json:"options"`
	KeepAlive any           `json:"keep_alive,omitempty"`
}

type ollamaChatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error"`
}

func (r ollamaChatResponse) usage() *domain.Usage {
	return &domain.Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}

type ollamaTags struct {
	Models []struct {
		Name    string `json:"name"`
		Details struct {
			Family        string `json:"family"`
			ParameterSize string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

func (a *ollamaAdapter) Models(context.Context) []domain.ModelInfo {
	return a.catalog.list()
}

// ValidateAPIKey is a reachability probe; Ollama has no credentials.
func (a *ollamaAdapter) ValidateAPIKey(ctx context.Context, _ string) bool {
	return a.transport.probe(ctx, "/api/tags", "")
}

// RefreshModels replaces the catalog with the models installed on the server.
func (a *ollamaAdapter) RefreshModels(ctx context.Context, _ string) error {
	var tags ollamaTags
	if err := a.transport.call(ctx, http.MethodGet, "/api/tags", "", nil, &tags); err != nil {
		return err
	}
	models := make([]domain.ModelInfo, 0, len(tags.Models))
	for _, item := range tags.Models {
		model := ollamaModel(item.Name)
		if item.Details.Family != "" {
			model.Description = strings.TrimSpace(fmt.Sprintf("%s %s", item.Details.Family, item.Details.ParameterSize))
		}
		models = append(models, model)
	}
	a.catalog.replace(models)
	return nil
}

func (a *ollamaAdapter) buildRequest(prompt string, opts domain.GenerationOptions, streaming bool) (ollamaChatRequest, error) {
	messages, err := renderPromptMessages(prompt, opts)
	if err != nil {
		return ollamaChatRequest{}, domain.WrapAdapterError(a.id, domain.ErrCodeBadRequest, "render prompt", err)
	}
	return ollamaChatRequest{
		Model:    opts.Model,
		Messages: toChatMessages(messages),
		Stream:   streaming,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			NumPredict:  opts.MaxTokens,
			NumCtx:      opts.Extra["num_ctx"],
			Seed:        opts.Extra["seed"],
		},
		KeepAlive: opts.Extra["keep_alive"],
	}, nil
}

func (a *ollamaAdapter) GenerateText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (domain.TextResponse, error) {
	if err := a.preflight(apiKey, opts.Model, domain.CapabilityTextGeneration); err != nil {
		return domain.TextResponse{}, err
	}
	payload, err := a.buildRequest(prompt, opts, false)
	if err != nil {
		return domain.TextResponse{}, err
	}

	var decoded ollamaChatResponse
	if err := a.transport.call(ctx, http.MethodPost, "/api/chat", "", payload, &decoded); err != nil {
		return domain.TextResponse{}, err
	}
	if decoded.Error != "" {
		return domain.TextResponse{}, domain.NewAdapterError(a.id, domain.ErrCodeUnknown, decoded.Error)
	}
	return domain.TextResponse{
		Content:      decoded.Message.Content,
		Usage:        decoded.usage(),
		FinishReason: decoded.DoneReason,
	}, nil
}

func (a *ollamaAdapter) StreamText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (ports.ChunkStream, error) {
	if err := a.preflight(apiKey, opts.Model, domain.CapabilityTextGeneration); err != nil {
		return nil, err
	}
	payload, err := a.buildRequest(prompt, opts, true)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	body, err := a.transport.open(streamCtx, "/api/chat", "", payload)
	if err != nil {
		cancel()
		return nil, err
	}

	return stream.Run(streamCtx, a.id, func(ctx context.Context, emit func(string) error) (*domain.ChunkMetadata, error) {
		defer cancel()
		defer body.Close()
		closeOnDone(ctx, body)
		return a.readStream(ctx, body, emit)
	}), nil
}

// readStream consumes newline-delimited JSON until a line with done=true.
func (a *ollamaAdapter) readStream(ctx context.Context, body io.Reader, emit func(string) error) (*domain.ChunkMetadata, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaChatResponse
		if err := decodeJSON(line, &chunk); err != nil {
			return nil, parseError(a.id, "stream line", err)
		}
		if chunk.Error != "" {
			return nil, domain.NewAdapterError(a.id, domain.ErrCodeUnknown, chunk.Error)
		}
		if err := emit(chunk.Message.Content); err != nil {
			return nil, err
		}
		if chunk.Done {
			return &domain.ChunkMetadata{
				Usage:        chunk.usage(),
				FinishReason: chunk.DoneReason,
				Model:        chunk.Model,
			}, nil
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return nil, transportError(a.id, err)
	}
	return nil, domain.NewAdapterError(a.id, domain.ErrCodeParse, "stream ended before done")
}

func (a *ollamaAdapter) GenerateImage(context.Context, string, domain.ImageOptions, string) (domain.ImageResponse, error) {
	return domain.ImageResponse{}, a.unsupported("image generation")
}

var (
	_ ports.Adapter        = (*ollamaAdapter)(nil)
	_ ports.ModelRefresher = (*ollamaAdapter)(nil)
)
