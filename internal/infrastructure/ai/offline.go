package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/stream"
	"github.com/doeshing/multiprompt/internal/ports"
)

// offlineAdapter answers locally without any network or credential. It exists for
// demos and for checking the fan-out and persistence path end to end.
type offlineAdapter struct {
	base
	// delay paces streamed words so cancellation can be observed.
	delay time.Duration
}

// NewOffline builds the offline adapter. delay is the pause between streamed words.
func NewOffline(delay time.Duration) ports.Adapter {
	return &offlineAdapter{
		base: base{
			id:          "offline",
			name:        "Offline",
			description: "Deterministic local answers, no network required",
			catalog: newCatalog(
				domain.ModelInfo{
					ID:           "echo",
					Name:         "Echo",
					Description:  "Repeats the prompt back",
					Capabilities: domain.Capabilities{TextGeneration: true, Streaming: true, ContextLength: 8192},
				},
				domain.ModelInfo{
					ID:           "heuristic",
					Name:         "Heuristic",
					Description:  "Keyword based canned answers",
					Capabilities: domain.Capabilities{TextGeneration: true, Streaming: true, ContextLength: 8192},
				},
			),
		},
		delay: delay,
	}
}

func (a *offlineAdapter) Models(context.Context) []domain.ModelInfo {
	return a.catalog.list()
}

func (a *offlineAdapter) ValidateAPIKey(context.Context, string) bool {
	return true
}

func (a *offlineAdapter) GenerateText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (domain.TextResponse, error) {
	if err := a.preflight(apiKey, opts.Model, domain.CapabilityTextGeneration); err != nil {
		return domain.TextResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.TextResponse{}, domain.AsAdapterError(a.id, err)
	}
	content := a.answer(prompt, opts)
	return domain.TextResponse{
		Content:      content,
		Usage:        estimateUsage(prompt, content),
		FinishReason: "stop",
	}, nil
}

func (a *offlineAdapter) StreamText(ctx context.Context, prompt string, opts domain.GenerationOptions, apiKey string) (ports.ChunkStream, error) {
	if err := a.preflight(apiKey, opts.Model, domain.CapabilityTextGeneration); err != nil {
		return nil, err
	}
	content := a.answer(prompt, opts)

	return stream.Run(ctx, a.id, func(ctx context.Context, emit func(string) error) (*domain.ChunkMetadata, error) {
		for _, piece := range splitKeepingSpace(content) {
			if a.delay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(a.delay):
				}
			}
			if err := emit(piece); err != nil {
				return nil, err
			}
		}
		return &domain.ChunkMetadata{
			Usage:        estimateUsage(prompt, content),
			FinishReason: "stop",
			Model:        opts.Model,
		}, nil
	}), nil
}

func (a *offlineAdapter) GenerateImage(context.Context, string, domain.ImageOptions, string) (domain.ImageResponse, error) {
	return domain.ImageResponse{}, a.unsupported("image generation")
}

func (a *offlineAdapter) answer(prompt string, opts domain.GenerationOptions) string {
	prompt = strings.TrimSpace(prompt)
	if opts.Model == "echo" {
		return prompt
	}
	return guessAnswer(prompt)
}

func guessAnswer(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi "):
		return "Hello! This answer was produced offline."
	case strings.Contains(lower, "time"):
		return "I cannot tell the time offline, check your system clock."
	case strings.HasSuffix(lower, "?"):
		return fmt.Sprintf("No provider is reachable, so here is your question back: %s", prompt)
	default:
		return fmt.Sprintf("Offline mode received %d words.", len(strings.Fields(prompt)))
	}
}

// splitKeepingSpace splits s into words with their trailing whitespace so that
// concatenating the pieces gives s back.
func splitKeepingSpace(s string) []string {
	var (
		pieces []string
		start  int
		inWord bool
	)
	for i, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if !isSpace && !inWord && i > start {
			pieces = append(pieces, s[start:i])
			start = i
		}
		inWord = !isSpace
	}
	if start < len(s) {
		pieces = append(pieces, s[start:])
	}
	return pieces
}

func estimateUsage(prompt, content string) *domain.Usage {
	in := len(strings.Fields(prompt))
	out := len(strings.Fields(content))
	return &domain.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
}

var _ ports.Adapter = (*offlineAdapter)(nil)
