package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/stream"
)

const openAIAnswer = "The capital of France is Paris."

func newOpenAIServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		if r.Header.Get("authorization") != "Bearer sk-test" {
			w.Header().Set("content-type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
			return
		}

		switch r.URL.Path {
		case "/models":
			fmt.Fprint(w, `{"data":[{"id":"gpt-4o"}]}`)
		case "/chat/completions":
			if r.Header.Get("accept") == "text/event-stream" {
				w.Header().Set("content-type", "text/event-stream")
				for _, part := range []string{"The capital", " of France", " is Paris."} {
					fmt.Fprintf(w, "data: {\"model\":\"gpt-4o\",\"choices\":[{\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n", part)
				}
				fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
				fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":7,\"total_tokens\":16}}\n\n")
				fmt.Fprint(w, "data: [DONE]\n\n")
				return
			}
			w.Header().Set("content-type", "application/json")
			fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":9,"completion_tokens":7,"total_tokens":16}}`, openAIAnswer)
		case "/images/generations":
			fmt.Fprint(w, `{"data":[{"url":"https://example.test/cat.png","revised_prompt":"a cat"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOpenAI_StreamMatchesAggregate(t *testing.T) {
	server := newOpenAIServer(t, nil)
	defer server.Close()

	adapter := NewOpenAI(OpenAIOptions{Endpoint: server.URL}, server.Client())
	opts := domain.GenerationOptions{Model: "gpt-4o", Temperature: domain.Float64(0.2)}

	aggregate, err := adapter.GenerateText(context.Background(), "Capital of France?", opts, "sk-test")
	if err != nil {
		t.Fatalf("GenerateText() error: %v", err)
	}
	if aggregate.Content != openAIAnswer {
		t.Errorf("content = %q, want %q", aggregate.Content, openAIAnswer)
	}

	chunks, err := adapter.StreamText(context.Background(), "Capital of France?", opts, "sk-test")
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
	if streamed.FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", streamed.FinishReason)
	}
	if streamed.Usage == nil || streamed.Usage.TotalTokens != 16 {
		t.Errorf("usage = %+v, want total 16", streamed.Usage)
	}
}

func TestOpenAI_PreflightSkipsNetwork(t *testing.T) {
	var calls int32
	server := newOpenAIServer(t, &calls)
	defer server.Close()
	adapter := NewOpenAI(OpenAIOptions{Endpoint: server.URL}, server.Client())

	tests := []struct {
		name   string
		model  string
		apiKey string
		want   domain.ErrorCode
	}{
		{"missing key", "gpt-4o", "", domain.ErrCodeMissingCredential},
		{"image-only model", "dall-e-3", "sk-test", domain.ErrCodeUnsupportedOperation},
		{"unknown model", "gpt-0", "sk-test", domain.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.GenerateText(context.Background(), "hi", domain.GenerationOptions{Model: tt.model}, tt.apiKey)
			var adapterErr *domain.AdapterError
			if !errors.As(err, &adapterErr) || adapterErr.Code != tt.want {
				t.Fatalf("error = %v, want %s", err, tt.want)
			}
			if adapterErr.Retryable() {
				t.Error("pre-flight errors must not be retryable")
			}
		})
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("server saw %d calls, want 0", got)
	}
}

func TestOpenAI_InvalidKeyTranslated(t *testing.T) {
	server := newOpenAIServer(t, nil)
	defer server.Close()
	adapter := NewOpenAI(OpenAIOptions{Endpoint: server.URL}, server.Client())

	_, err := adapter.GenerateText(context.Background(), "hi", domain.GenerationOptions{Model: "gpt-4o"}, "sk-wrong")
	var adapterErr *domain.AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	if adapterErr.Code != domain.ErrCodeInvalidCredential || adapterErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("got %s (%d), want invalid_credential (401)", adapterErr.Code, adapterErr.StatusCode)
	}
	if adapterErr.Message != "Incorrect API key provided" {
		t.Errorf("message = %q", adapterErr.Message)
	}

	if adapter.ValidateAPIKey(context.Background(), "sk-wrong") {
		t.Error("ValidateAPIKey(wrong) = true")
	}
	if !adapter.ValidateAPIKey(context.Background(), "sk-test") {
		t.Error("ValidateAPIKey(valid) = false")
	}
}

func TestOpenAI_TruncatedStreamIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"half an\"}}]}\n\n")
	}))
	defer server.Close()
	adapter := NewOpenAI(OpenAIOptions{Endpoint: server.URL}, server.Client())

	chunks, err := adapter.StreamText(context.Background(), "hi", domain.GenerationOptions{Model: "gpt-4o"}, "sk-test")
	if err != nil {
		t.Fatalf("StreamText() error: %v", err)
	}
	partial, err := stream.Collect(context.Background(), chunks)
	var adapterErr *domain.AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Code != domain.ErrCodeParse {
		t.Fatalf("error = %v, want parse_error", err)
	}
	if partial.Content != "half an" {
		t.Errorf("partial content = %q", partial.Content)
	}
}

func TestOpenAI_GenerateImage(t *testing.T) {
	server := newOpenAIServer(t, nil)
	defer server.Close()
	adapter := NewOpenAI(OpenAIOptions{Endpoint: server.URL}, server.Client())

	resp, err := adapter.GenerateImage(context.Background(), "a cat", domain.ImageOptions{Model: "dall-e-3", Size: "1024x1024"}, "sk-test")
	if err != nil {
		t.Fatalf("GenerateImage() error: %v", err)
	}
	if len(resp.Images) != 1 || resp.Images[0].URL != "https://example.test/cat.png" {
		t.Errorf("images = %+v", resp.Images)
	}

	_, err = adapter.GenerateImage(context.Background(), "a cat", domain.ImageOptions{Model: "gpt-4o"}, "sk-test")
	var adapterErr *domain.AdapterError
	if !errors.As(err, &adapterErr) || adapterErr.Code != domain.ErrCodeUnsupportedOperation {
		t.Errorf("text model image error = %v, want unsupported_operation", err)
	}
}

func TestOpenAICompatible_RefreshModels(t *testing.T) {
	server := newOpenAIServer(t, nil)
	defer server.Close()
	adapter := NewOpenAI(OpenAIOptions{ID: "gateway", Endpoint: server.URL, Compatible: true}, server.Client())

	if len(adapter.Models(context.Background())) != 0 {
		t.Fatal("compatible catalog should start empty")
	}
	refresher := adapter.(interface {
		RefreshModels(context.Context, string) error
	})
	if err := refresher.RefreshModels(context.Background(), "sk-test"); err != nil {
		t.Fatalf("RefreshModels() error: %v", err)
	}
	if !adapter.SupportsCapability("gpt-4o", domain.CapabilityTextGeneration) {
		t.Error("refreshed model should support text generation")
	}
}
