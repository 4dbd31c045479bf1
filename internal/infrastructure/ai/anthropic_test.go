package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/stream"
)

func anthropicSSE(w http.ResponseWriter, events ...string) {
	w.Header().Set("content-type", "text/event-stream")
	for _, event := range events {
		fmt.Fprintf(w, "data: %s\n\n", event)
	}
}

func TestAnthropic_StreamMatchesAggregate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" || r.Header.Get("anthropic-version") != anthropicVersion {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("accept") == "text/event-stream" {
			anthropicSSE(w,
				`{"type":"message_start","message":{"model":"claude-3-5-haiku-latest","usage":{"input_tokens":12}}}`,
				`{"type":"content_block_start","index":0}`,
				`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Bonjour"}}`,
				`{"type":"content_block_delta","delta":{"type":"text_delta","text":" le monde"}}`,
				`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":4}}`,
				`{"type":"message_stop"}`,
			)
			return
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"Bonjour le monde"}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":4}}`)
	}))
	defer server.Close()

	adapter := NewAnthropic(server.URL, server.Client())
	opts := domain.GenerationOptions{Model: "claude-3-5-haiku-latest", SystemPrompt: "Answer in French."}

	aggregate, err := adapter.GenerateText(context.Background(), "Hello world", opts, "key")
	if err != nil {
		t.Fatalf("GenerateText() error: %v", err)
	}

	chunks, err := adapter.StreamText(context.Background(), "Hello world", opts, "key")
	if err != nil {
		t.Fatalf("StreamText() error: %v", err)
	}
	streamed, err := stream.Collect(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	if streamed.Content != aggregate.Content {
		t.Errorf("streamed %q, aggregate %q", streamed.Content, aggregate.Content)
	}
	if streamed.Usage == nil || *streamed.Usage != *aggregate.Usage {
		t.Errorf("streamed usage %+v, aggregate %+v", streamed.Usage, aggregate.Usage)
	}
	if streamed.FinishReason != "end_turn" {
		t.Errorf("finish reason = %q", streamed.FinishReason)
	}
}

func TestAnthropic_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		want       domain.ErrorCode
		wantRetry  bool
		wantInText string
	}{
		{
			name:   "overloaded",
			status: 529,
			body:   `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			want:   domain.ErrCodeServiceUnavailable, wantRetry: true, wantInText: "Overloaded",
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"type":"error","error":{"type":"rate_limit_error","message":"Too many requests"}}`,
			want:   domain.ErrCodeRateLimited, wantRetry: false, wantInText: "Too many requests",
		},
		{
			name:   "truncated json body",
			status: http.StatusBadRequest,
			body:   `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens too large`,
			want:   domain.ErrCodeBadRequest, wantRetry: false, wantInText: "max_tokens too large",
		},
		{
			name:   "html gateway page",
			status: http.StatusBadGateway,
			body:   `<html><body><h1>502 Bad Gateway</h1><p>upstream unavailable</p></body></html>`,
			want:   domain.ErrCodeServiceUnavailable, wantRetry: true, wantInText: "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			adapter := NewAnthropic(server.URL, server.Client())
			_, err := adapter.GenerateText(context.Background(), "hi", domain.GenerationOptions{Model: "claude-sonnet-4-0"}, "key")

			var adapterErr *domain.AdapterError
			if !errors.As(err, &adapterErr) {
				t.Fatalf("expected AdapterError, got %v", err)
			}
			if adapterErr.Code != tt.want {
				t.Errorf("code = %s, want %s", adapterErr.Code, tt.want)
			}
			if adapterErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", adapterErr.StatusCode, tt.status)
			}
			if adapterErr.Retryable() != tt.wantRetry {
				t.Errorf("Retryable() = %v, want %v", adapterErr.Retryable(), tt.wantRetry)
			}
			if !containsFold(adapterErr.Message, tt.wantInText) {
				t.Errorf("message %q does not mention %q", adapterErr.Message, tt.wantInText)
			}
		})
	}
}

func TestAnthropic_StreamErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		anthropicSSE(w,
			`{"type":"message_start","message":{"usage":{"input_tokens":3}}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}`,
			`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
		)
	}))
	defer server.Close()

	adapter := NewAnthropic(server.URL, server.Client())
	chunks, err := adapter.StreamText(context.Background(), "hi", domain.GenerationOptions{Model: "claude-sonnet-4-0"}, "key")
	if err != nil {
		t.Fatalf("StreamText() error: %v", err)
	}
	partial, err := stream.Collect(context.Background(), chunks)
	var adapterErr *domain.AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Code != domain.ErrCodeServiceUnavailable {
		t.Fatalf("error = %v, want service_unavailable", err)
	}
	if partial.Content != "partial" {
		t.Errorf("partial content = %q", partial.Content)
	}
}
