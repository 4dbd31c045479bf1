package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/doeshing/multiprompt/internal/domain"
)

const (
	maxResponseBodySize int64 = 10 * 1024 * 1024
	maxErrorBodySize    int64 = 64 * 1024
)

// transport is the shared HTTP plumbing of the vendor adapters.
// The client carries no global timeout so streams can outlive it; non-streaming
// calls are bounded per request instead.
type transport struct {
	provider   string
	baseURL    string
	httpClient *http.Client
	headers    func(apiKey string) http.Header
}

func newTransport(provider, baseURL string, client *http.Client, headers func(apiKey string) http.Header) *transport {
	return &transport{
		provider:   provider,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		headers:    headers,
	}
}

func (t *transport) newRequest(ctx context.Context, method, path, apiKey string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, domain.WrapAdapterError(t.provider, domain.ErrCodeBadRequest, "encode request", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, domain.WrapAdapterError(t.provider, domain.ErrCodeBadRequest, "create request", err)
	}
	if payload != nil {
		req.Header.Set("content-type", "application/json")
	}
	if t.headers != nil {
		for key, values := range t.headers(apiKey) {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
	}
	return req, nil
}

// do sends req and returns the response if it is 2xx; otherwise the body is read,
// closed, and translated.
func (t *transport) do(req *http.Request) (*http.Response, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, transportError(t.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, statusError(t.provider, resp.StatusCode, resp.Header.Get("content-type"), body)
	}
	return resp, nil
}

// call performs a bounded JSON request and decodes the response into out.
func (t *transport) call(ctx context.Context, method, path, apiKey string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, domain.DefaultHTTPClientTimeout)
	defer cancel()

	req, err := t.newRequest(ctx, method, path, apiKey, payload)
	if err != nil {
		return err
	}
	resp, err := t.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(out); err != nil {
		return parseError(t.provider, "response", err)
	}
	return nil
}

// open starts a streaming request and hands back the live body. The caller closes it.
func (t *transport) open(ctx context.Context, path, apiKey string, payload any) (io.ReadCloser, error) {
	req, err := t.newRequest(ctx, http.MethodPost, path, apiKey, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "text/event-stream")
	resp, err := t.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// probe reports whether a GET on path succeeds with the given key.
func (t *transport) probe(ctx context.Context, path, apiKey string) bool {
	return t.call(ctx, http.MethodGet, path, apiKey, nil, nil) == nil
}

// closeOnDone closes body once ctx ends, unblocking a pending read.
func closeOnDone(ctx context.Context, body io.Closer) {
	go func() {
		<-ctx.Done()
		_ = body.Close()
	}()
}

// mergeExtra returns payload as a JSON object with extra keys added.
// Keys already present in payload are kept.
func mergeExtra(payload any, extra map[string]any) (any, error) {
	if len(extra) == 0 {
		return payload, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var object map[string]any
	if err := json.Unmarshal(encoded, &object); err != nil {
		return nil, err
	}
	for key, value := range extra {
		if _, exists := object[key]; !exists {
			object[key] = value
		}
	}
	return object, nil
}
