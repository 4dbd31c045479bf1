package execution

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/pkg/logger"
	"github.com/doeshing/multiprompt/internal/ports"
)

// stubGenerator answers per provider: scripted failures, blocking legs, or a canned answer.
type stubGenerator struct {
	mu       sync.Mutex
	answers  map[string]string
	failures map[string]*domain.AdapterError
	blocking map[string]bool
	pieces   map[string][]string
	seen     []domain.GenerationOptions
}

func newStubGenerator() *stubGenerator {
	return &stubGenerator{
		answers:  make(map[string]string),
		failures: make(map[string]*domain.AdapterError),
		blocking: make(map[string]bool),
		pieces:   make(map[string][]string),
	}
}

func (g *stubGenerator) record(opts domain.GenerationOptions) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = append(g.seen, opts)
}

func (g *stubGenerator) lastOptions() domain.GenerationOptions {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[len(g.seen)-1]
}

func (g *stubGenerator) GenerateText(ctx context.Context, providerID, prompt string, opts domain.GenerationOptions) domain.ExecutionResult[domain.TextResponse] {
	g.record(opts)
	result := domain.ExecutionResult[domain.TextResponse]{ProviderID: providerID, ModelID: opts.Model}
	if err, ok := g.failures[providerID]; ok {
		result.Err = err
		return result
	}
	if g.blocking[providerID] {
		<-ctx.Done()
		result.Err = domain.AsAdapterError(providerID, ctx.Err())
		return result
	}
	answer, ok := g.answers[providerID]
	if !ok {
		answer = "answer from " + providerID
	}
	result.Success = true
	result.Data = domain.TextResponse{Content: answer, FinishReason: "stop"}
	return result
}

func (g *stubGenerator) StreamText(ctx context.Context, providerID, prompt string, opts domain.GenerationOptions) domain.ExecutionResult[ports.ChunkStream] {
	g.record(opts)
	result := domain.ExecutionResult[ports.ChunkStream]{ProviderID: providerID, ModelID: opts.Model}
	if err, ok := g.failures[providerID]; ok {
		result.Err = err
		return result
	}
	result.Success = true
	result.Data = &scriptedStream{pieces: g.pieces[providerID], block: g.blocking[providerID]}
	return result
}

// scriptedStream yields its pieces, then either blocks until cancelled or completes.
type scriptedStream struct {
	pieces []string
	next   int
	block  bool
	done   bool
}

func (s *scriptedStream) Next(ctx context.Context) (domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return domain.Chunk{}, err
	}
	if s.next < len(s.pieces) {
		s.next++
		return domain.Chunk{Content: s.pieces[s.next-1]}, nil
	}
	if s.block {
		<-ctx.Done()
		return domain.Chunk{}, ctx.Err()
	}
	if s.done {
		return domain.Chunk{}, io.EOF
	}
	s.done = true
	return domain.Chunk{IsComplete: true, Metadata: &domain.ChunkMetadata{FinishReason: "stop"}}, nil
}

func (s *scriptedStream) Close() error { return nil }

type memoryResponse struct {
	durableID      int64
	entryDurableID int64
	resp           domain.PromptResponse
}

// memoryRepo is an in-memory HistoryRepository that counts writes.
type memoryRepo struct {
	mu        sync.Mutex
	nextID    int64
	entries   map[int64]domain.PromptEntry
	responses map[int64]*memoryResponse
	updates   map[string]int

	createEntryErr error
	deleteErr      error
	listErr        error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries:   make(map[int64]domain.PromptEntry),
		responses: make(map[int64]*memoryResponse),
		updates:   make(map[string]int),
	}
}

func (r *memoryRepo) CreateEntry(_ context.Context, entry domain.PromptEntry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createEntryErr != nil {
		return 0, r.createEntryErr
	}
	r.nextID++
	entry.Responses = nil
	r.entries[r.nextID] = entry
	return r.nextID, nil
}

func (r *memoryRepo) UpdateEntryStatus(_ context.Context, durableID int64, status domain.EntryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[durableID]
	if !ok {
		return errors.New("no entry")
	}
	entry.Status = status
	r.entries[durableID] = entry
	return nil
}

func (r *memoryRepo) UpdateEntryTargets(_ context.Context, durableID int64, providers, models []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[durableID]
	if !ok {
		return errors.New("no entry")
	}
	entry.Providers = append([]string(nil), providers...)
	entry.Models = append([]string(nil), models...)
	r.entries[durableID] = entry
	return nil
}

func (r *memoryRepo) CreateResponse(_ context.Context, entryDurableID int64, resp domain.PromptResponse) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entryDurableID]; !ok {
		return 0, errors.New("no entry")
	}
	r.nextID++
	r.responses[r.nextID] = &memoryResponse{durableID: r.nextID, entryDurableID: entryDurableID, resp: resp}
	return r.nextID, nil
}

func (r *memoryRepo) UpdateResponse(_ context.Context, durableID int64, resp domain.PromptResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.responses[durableID]
	if !ok {
		return errors.New("no response")
	}
	stored.resp = resp
	r.updates[resp.ID]++
	return nil
}

func (r *memoryRepo) DeleteEntry(_ context.Context, durableID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	for id, stored := range r.responses {
		if stored.entryDurableID == durableID {
			delete(r.responses, id)
		}
	}
	delete(r.entries, durableID)
	return nil
}

func (r *memoryRepo) ListEntries(_ context.Context, query domain.HistoryQuery) ([]domain.StoredEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	ids := make([]int64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if query.Limit > 0 && len(ids) > query.Limit {
		ids = ids[:query.Limit]
	}

	out := make([]domain.StoredEntry, 0, len(ids))
	for _, id := range ids {
		stored := domain.StoredEntry{DurableID: id, Entry: r.entries[id]}
		var responses []*memoryResponse
		for _, resp := range r.responses {
			if resp.entryDurableID == id {
				responses = append(responses, resp)
			}
		}
		sort.Slice(responses, func(i, j int) bool { return responses[i].durableID < responses[j].durableID })
		for _, resp := range responses {
			stored.Responses = append(stored.Responses, domain.StoredResponse{DurableID: resp.durableID, Response: resp.resp})
		}
		out = append(out, stored)
	}
	return out, nil
}

// storedResponse returns the durable copy of a response by volatile id.
func (r *memoryRepo) storedResponse(responseID string) (domain.PromptResponse, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.responses {
		if stored.resp.ID == responseID {
			return stored.resp, r.updates[responseID], true
		}
	}
	return domain.PromptResponse{}, 0, false
}

func (r *memoryRepo) entryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newTestExecutor(gen Generator, repo ports.HistoryRepository, opts Options) *Executor {
	return New(gen, repo, nil, logger.Nop(), opts)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func targets(pairs ...string) []domain.Target {
	out := make([]domain.Target, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.Target{ProviderID: pairs[i], ModelID: pairs[i+1]})
	}
	return out
}

// recordingPublisher keeps every event in order and signals the first delta.
type recordingPublisher struct {
	mu         sync.Mutex
	events     []domain.Event
	firstDelta chan struct{}
	once       sync.Once
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{firstDelta: make(chan struct{})}
}

func (p *recordingPublisher) Publish(evt domain.Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	if evt.Type == domain.EventResponseDelta {
		p.once.Do(func() { close(p.firstDelta) })
	}
}

func (p *recordingPublisher) snapshot() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}
