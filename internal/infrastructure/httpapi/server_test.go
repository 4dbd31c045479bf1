package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/doeshing/multiprompt/internal/application/execution"
	"github.com/doeshing/multiprompt/internal/application/orchestrator"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/infrastructure/ai"
	"github.com/doeshing/multiprompt/internal/infrastructure/eventbus"
	"github.com/doeshing/multiprompt/internal/infrastructure/history"
	"github.com/doeshing/multiprompt/internal/pkg/logger"
	"github.com/doeshing/multiprompt/internal/ports"
)

type keylessCredentials struct{}

func (keylessCredentials) SafeAPIKey(context.Context, string) domain.CredentialResult {
	return domain.CredentialResult{Success: true}
}

type fixture struct {
	server *httptest.Server
	exec   *execution.Executor
	store  *history.SQLiteStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := ai.NewRegistry()
	registry.Register("offline", func() (ports.Adapter, error) { return ai.NewOffline(0), nil })

	log := logger.Nop()
	bus := eventbus.New()
	orch := orchestrator.New(domain.Config{}, registry, keylessCredentials{}, store, log, orchestrator.Options{})
	exec := execution.New(orch, store, bus, log, execution.Options{Debounce: 10 * time.Millisecond})

	defaults := []domain.Target{{ProviderID: "offline", ModelID: "echo"}}
	srv := New(exec, orch, bus, log, defaults)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &fixture{server: ts, exec: exec, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSubmitPrompt_SyncUsesDefaults(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/v1/prompts", SubmitPromptRequest{Prompt: "ping pong"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode[SubmitPromptResponse](t, resp)
	if body.Summary == nil || body.Summary.Outcome != execution.OutcomeAllSucceeded {
		t.Fatalf("summary = %+v", body.Summary)
	}
	if body.Entry == nil || len(body.Entry.Responses) != 1 || body.Entry.Responses[0].Content != "ping pong" {
		t.Fatalf("entry = %+v", body.Entry)
	}

	get := f.do(t, http.MethodGet, "/v1/entries/"+body.EntryID, nil)
	if get.StatusCode != http.StatusOK {
		t.Errorf("GET entry status = %d", get.StatusCode)
	}
}

func TestSubmitPrompt_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body SubmitPromptRequest
		want int
	}{
		{"empty prompt", SubmitPromptRequest{Prompt: " "}, http.StatusBadRequest},
		{"malformed target", SubmitPromptRequest{Prompt: "hi", Targets: []string{"offline"}}, http.StatusBadRequest},
		{"unknown continuation", SubmitPromptRequest{Prompt: "hi", ContinueFrom: "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := f.do(t, http.MethodPost, "/v1/prompts", tt.body); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestEntries_DeleteAndReload(t *testing.T) {
	f := newFixture(t)

	async := f.do(t, http.MethodPost, "/v1/prompts", SubmitPromptRequest{Prompt: "keep me", Async: true})
	if async.StatusCode != http.StatusAccepted {
		t.Fatalf("async status = %d", async.StatusCode)
	}
	accepted := decode[SubmitPromptResponse](t, async)

	deadline := time.Now().Add(2 * time.Second)
	for {
		entry, ok := f.exec.Entry(accepted.EntryID)
		if ok && entry.Status == domain.EntryCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("async submission did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}

	second := decode[SubmitPromptResponse](t, f.do(t, http.MethodPost, "/v1/prompts", SubmitPromptRequest{Prompt: "drop me"}))
	if resp := f.do(t, http.MethodDelete, "/v1/entries/"+second.EntryID, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if resp := f.do(t, http.MethodDelete, "/v1/entries/"+second.EntryID, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}

	reload := f.do(t, http.MethodPost, "/v1/entries/reload", ReloadRequest{Limit: 10})
	if reload.StatusCode != http.StatusOK {
		t.Fatalf("reload status = %d", reload.StatusCode)
	}
	listed := decode[struct {
		Data []domain.PromptEntry `json:"data"`
	}](t, reload)
	if len(listed.Data) != 1 || listed.Data[0].Prompt != "keep me" {
		t.Errorf("reloaded entries = %+v", listed.Data)
	}
	if listed.Data[0].ID != accepted.EntryID {
		t.Errorf("reloaded id = %s, want %s", listed.Data[0].ID, accepted.EntryID)
	}
}

func TestCancelUnknownResponse(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(t, http.MethodPost, "/v1/responses/nope/cancel", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestProvidersModelsAndImages(t *testing.T) {
	f := newFixture(t)

	providers := decode[struct {
		Data []orchestrator.ProviderStatus `json:"data"`
	}](t, f.do(t, http.MethodGet, "/v1/providers", nil))
	if len(providers.Data) != 1 || providers.Data[0].ID != "offline" || !providers.Data[0].Enabled {
		t.Errorf("providers = %+v", providers.Data)
	}

	models := decode[struct {
		Data []domain.ProviderModels `json:"data"`
	}](t, f.do(t, http.MethodGet, "/v1/models", nil))
	if len(models.Data) != 1 || len(models.Data[0].Models) == 0 {
		t.Errorf("models = %+v", models.Data)
	}

	health := decode[healthView](t, f.do(t, http.MethodGet, "/v1/providers/offline/health", nil))
	if !health.Healthy {
		t.Errorf("offline health = %+v", health)
	}

	image := f.do(t, http.MethodPost, "/v1/images", ImageRequest{Provider: "offline", Model: "echo", Prompt: "a cat"})
	if image.StatusCode != http.StatusBadRequest {
		t.Errorf("image status = %d, want 400", image.StatusCode)
	}
	if body := decode[errorBody](t, image); body.Code != domain.ErrCodeUnsupportedOperation {
		t.Errorf("image error code = %s", body.Code)
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/v1/events?types=entry.created,response.done", nil)
	resp, err := f.server.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, err := reader.ReadString('\n'); err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	f.do(t, http.MethodPost, "/v1/prompts", SubmitPromptRequest{Prompt: "hello there"})

	var seen []string
	for len(seen) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
			seen = append(seen, name)
		}
	}
	if seen[0] != string(domain.EventEntryCreated) || seen[1] != string(domain.EventResponseDone) {
		t.Errorf("events = %v", seen)
	}
}
