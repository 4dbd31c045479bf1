// Package execution fans one prompt out to several (provider, model) targets and
// keeps an in-memory view of every entry consistent with the durable store.
//
// The executor's mutex is the only mutation surface for the entry list, the id
// maps and the live responses. Streaming deltas are applied in memory at once and
// written through a debounced, per-response flush; terminal transitions stop the
// pending timer and flush exactly once.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

var (
	// ErrEntryNotFound is returned for an unknown volatile entry id.
	ErrEntryNotFound = errors.New("execution: entry not found")
	// ErrResponseNotFound is returned when a response is unknown or already finished.
	ErrResponseNotFound = errors.New("execution: response not found or not cancellable")
)

// Generator is the slice of the orchestrator the executor calls.
type Generator interface {
	GenerateText(ctx context.Context, providerID, prompt string, opts domain.GenerationOptions) domain.ExecutionResult[domain.TextResponse]
	StreamText(ctx context.Context, providerID, prompt string, opts domain.GenerationOptions) domain.ExecutionResult[ports.ChunkStream]
}

// Options tunes the executor.
type Options struct {
	// Debounce is the quiet period before a streaming response is written.
	Debounce time.Duration
	// Timeout bounds each leg; zero means no bound beyond the caller's context.
	Timeout time.Duration
}

// SubmitRequest is one prompt to fan out.
type SubmitRequest struct {
	Prompt  string
	Targets []domain.Target
	Stream  bool
	// ContinuationOf appends the legs to an existing entry instead of creating one.
	ContinuationOf string
	// Options are the base generation options; Model and Stream are set per leg.
	Options domain.GenerationOptions
}

// Executor runs submissions and owns the in-memory history view.
type Executor struct {
	gen    Generator
	repo   ports.HistoryRepository
	events ports.EventPublisher
	logger ports.Logger
	opts   Options

	newID func() string
	now   func() time.Time

	mu              sync.Mutex
	entries         []*domain.PromptEntry // newest first
	entryDurable    map[string]int64
	responseDurable map[string]int64
	live            map[string]*liveResponse
}

// New builds an executor. events may be nil.
func New(gen Generator, repo ports.HistoryRepository, events ports.EventPublisher, logger ports.Logger, opts Options) *Executor {
	if opts.Debounce <= 0 {
		opts.Debounce = domain.DefaultDebounceInterval
	}
	return &Executor{
		gen:             gen,
		repo:            repo,
		events:          events,
		logger:          logger,
		opts:            opts,
		newID:           uuid.NewString,
		now:             time.Now,
		entryDurable:    make(map[string]int64),
		responseDurable: make(map[string]int64),
		live:            make(map[string]*liveResponse),
	}
}

// Submission tracks one in-flight fan-out.
type Submission struct {
	EntryID     string
	ResponseIDs []string

	done    chan struct{}
	summary Summary
}

// Done is closed once every leg settled and the entry was marked completed.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the submission settles or ctx ends. Ending ctx does not cancel the legs.
func (s *Submission) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-s.done:
		return s.summary, nil
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}

// SubmitPrompt runs a submission to completion. Cancelling ctx cancels the legs; the call
// still returns only after every leg settled and was persisted.
func (e *Executor) SubmitPrompt(ctx context.Context, req SubmitRequest) (Summary, error) {
	sub, err := e.Begin(ctx, req)
	if err != nil {
		return Summary{}, err
	}
	<-sub.done
	return sub.summary, nil
}

// Begin records the entry and its pending responses, starts one goroutine per target
// and returns without waiting. Legs run under ctx.
func (e *Executor) Begin(ctx context.Context, req SubmitRequest) (*Submission, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("prompt is empty")
	}
	if len(req.Targets) == 0 {
		return nil, errors.New("no targets selected")
	}

	entry, contexts, isNew, err := e.prepareEntry(prompt, req)
	if err != nil {
		return nil, err
	}

	if isNew {
		e.persistEntry(ctx, entry)
	} else {
		e.persistEntryTargets(ctx, entry.ID)
		e.persistEntryStatus(ctx, entry.ID, domain.EntryPending)
	}

	legs := e.addResponses(entry, prompt, req.Targets)
	for _, lr := range legs {
		e.persistResponse(ctx, entry.ID, lr)
	}

	if isNew {
		e.publish(domain.Event{Type: domain.EventEntryCreated, EntryID: entry.ID, Status: string(domain.EntryPending)})
	}

	sub := &Submission{EntryID: entry.ID, done: make(chan struct{})}
	outcomes := make([]legOutcome, len(legs))
	var wg sync.WaitGroup
	for i, lr := range legs {
		sub.ResponseIDs = append(sub.ResponseIDs, lr.resp.ID)

		opts := req.Options.Clone()
		opts.Model = lr.target.ModelID
		opts.Stream = req.Stream
		if c := contexts[lr.target]; c != "" {
			opts.Context = c
		}

		legCtx, cancel := context.WithCancel(ctx)
		if e.opts.Timeout > 0 {
			legCtx, cancel = withTimeout(legCtx, cancel, e.opts.Timeout)
		}
		e.mu.Lock()
		lr.cancel = cancel
		if lr.finalized {
			cancel()
		}
		e.mu.Unlock()

		wg.Add(1)
		go func(i int, lr *liveResponse) {
			defer wg.Done()
			defer cancel()
			outcomes[i] = e.runLeg(legCtx, lr, prompt, opts)
		}(i, lr)
	}

	go func() {
		wg.Wait()
		sub.summary = summarize(entry.ID, outcomes)
		e.completeEntry(entry.ID)
		close(sub.done)
	}()
	return sub, nil
}

func withTimeout(parent context.Context, parentCancel context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		cancel()
		parentCancel()
	}
}

// prepareEntry creates a new entry or reopens the continued one, and builds the
// conversation context for each target from its earlier exchanges in the entry.
func (e *Executor) prepareEntry(prompt string, req SubmitRequest) (*domain.PromptEntry, map[domain.Target]string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.ContinuationOf != "" {
		entry := e.findEntry(req.ContinuationOf)
		if entry == nil {
			return nil, nil, false, fmt.Errorf("continue %s: %w", req.ContinuationOf, ErrEntryNotFound)
		}
		contexts := make(map[domain.Target]string, len(req.Targets))
		for _, target := range req.Targets {
			contexts[target] = conversationContext(entry, target)
			entry.Providers = appendUnique(entry.Providers, target.ProviderID)
			entry.Models = appendUnique(entry.Models, target.ModelID)
		}
		entry.Status = domain.EntryPending
		return entry, contexts, false, nil
	}

	entry := &domain.PromptEntry{
		ID:        e.newID(),
		Prompt:    prompt,
		CreatedAt: e.now(),
		Status:    domain.EntryPending,
	}
	for _, target := range req.Targets {
		entry.Providers = appendUnique(entry.Providers, target.ProviderID)
		entry.Models = appendUnique(entry.Models, target.ModelID)
	}
	e.entries = append([]*domain.PromptEntry{entry}, e.entries...)
	return entry, nil, true, nil
}

// conversationContext renders the successful prior exchanges with target, oldest first.
func conversationContext(entry *domain.PromptEntry, target domain.Target) string {
	var b strings.Builder
	for _, resp := range entry.Responses {
		if resp.Target() != target || resp.Status != domain.ResponseSuccess {
			continue
		}
		prompt := resp.Prompt
		if prompt == "" {
			prompt = entry.Prompt
		}
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", prompt, resp.Content)
	}
	return strings.TrimSpace(b.String())
}

func (e *Executor) addResponses(entry *domain.PromptEntry, prompt string, targets []domain.Target) []*liveResponse {
	e.mu.Lock()
	defer e.mu.Unlock()

	legs := make([]*liveResponse, 0, len(targets))
	for _, target := range targets {
		resp := &domain.PromptResponse{
			ID:          e.newID(),
			EntryID:     entry.ID,
			ProviderID:  target.ProviderID,
			ModelID:     target.ModelID,
			Status:      domain.ResponsePending,
			Timestamp:   e.now(),
			Cancellable: true,
			Prompt:      prompt,
		}
		entry.Responses = append(entry.Responses, resp)
		lr := &liveResponse{resp: resp, target: target}
		e.live[resp.ID] = lr
		legs = append(legs, lr)
	}
	return legs
}

// persistEntry writes a new entry. Failures are logged; the entry stays in memory only.
func (e *Executor) persistEntry(ctx context.Context, entry *domain.PromptEntry) {
	e.mu.Lock()
	snapshot := *entry
	snapshot.Responses = nil
	e.mu.Unlock()

	durableID, err := e.repo.CreateEntry(context.WithoutCancel(ctx), snapshot)
	if err != nil {
		e.logger.Error("persist entry failed", err, map[string]interface{}{"entry_id": entry.ID})
		return
	}

	e.mu.Lock()
	present := e.findEntry(entry.ID) != nil
	if present {
		e.entryDurable[entry.ID] = durableID
	}
	e.mu.Unlock()

	// deleted while the row was being written
	if !present {
		if err := e.repo.DeleteEntry(context.WithoutCancel(ctx), durableID); err != nil {
			e.logger.Warn("orphan entry not removed", map[string]interface{}{"entry_id": entry.ID, "error": err.Error()})
		}
	}
}

func (e *Executor) persistEntryStatus(ctx context.Context, entryID string, status domain.EntryStatus) {
	e.mu.Lock()
	durableID, ok := e.entryDurable[entryID]
	e.mu.Unlock()
	if !ok {
		return
	}
	if err := e.repo.UpdateEntryStatus(context.WithoutCancel(ctx), durableID, status); err != nil {
		e.logger.Error("persist entry status failed", err, map[string]interface{}{"entry_id": entryID})
	}
}

// persistEntryTargets writes the entry's provider and model lists, which grow when a
// continuation reaches a new target.
func (e *Executor) persistEntryTargets(ctx context.Context, entryID string) {
	e.mu.Lock()
	durableID, ok := e.entryDurable[entryID]
	var providers, models []string
	if entry := e.findEntry(entryID); entry != nil {
		providers = append(providers, entry.Providers...)
		models = append(models, entry.Models...)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	if err := e.repo.UpdateEntryTargets(context.WithoutCancel(ctx), durableID, providers, models); err != nil {
		e.logger.Error("persist entry targets failed", err, map[string]interface{}{"entry_id": entryID})
	}
}

// persistResponse writes a new response row. It is skipped when the entry has no durable id.
func (e *Executor) persistResponse(ctx context.Context, entryID string, lr *liveResponse) {
	e.mu.Lock()
	entryDurableID, ok := e.entryDurable[entryID]
	snapshot := *lr.resp
	revision := lr.revision
	e.mu.Unlock()
	if !ok {
		e.logger.Warn("response not persisted, entry has no durable id", map[string]interface{}{"response_id": snapshot.ID})
		return
	}

	durableID, err := e.repo.CreateResponse(context.WithoutCancel(ctx), entryDurableID, snapshot)
	if err != nil {
		e.logger.Error("persist response failed", err, map[string]interface{}{"response_id": snapshot.ID})
		return
	}

	e.mu.Lock()
	lr.durableID = durableID
	if revision > lr.written {
		lr.written = revision
	}
	if _, tracked := e.entryDurable[entryID]; tracked {
		e.responseDurable[snapshot.ID] = durableID
	}
	behind := lr.revision > lr.written
	e.mu.Unlock()

	// the leg may have moved on while the row was being created
	if behind {
		e.flush(lr)
	}
}

// completeEntry marks the entry completed once all its legs settled.
func (e *Executor) completeEntry(entryID string) {
	e.mu.Lock()
	entry := e.findEntry(entryID)
	if entry == nil {
		e.mu.Unlock()
		return
	}
	for _, resp := range entry.Responses {
		if _, running := e.live[resp.ID]; running {
			// a continuation started on this entry is still running
			e.mu.Unlock()
			return
		}
	}
	entry.Status = domain.EntryCompleted
	e.mu.Unlock()

	e.persistEntryStatus(context.Background(), entryID, domain.EntryCompleted)
	e.publish(domain.Event{Type: domain.EventEntryCompleted, EntryID: entryID, Status: string(domain.EntryCompleted)})
}

// CancelResponse stops one in-flight leg. Its partial content is kept and persisted.
func (e *Executor) CancelResponse(responseID string) error {
	e.mu.Lock()
	lr, ok := e.live[responseID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel %s: %w", responseID, ErrResponseNotFound)
	}
	e.finalize(lr, func(resp *domain.PromptResponse) {
		resp.Status = domain.ResponseCancelled
		resp.Error = "cancelled by user"
	})
	return nil
}

// DeleteEntry removes an entry durably first; memory and id maps change only after the
// store confirmed. In-flight legs of the entry are cancelled without further writes.
func (e *Executor) DeleteEntry(ctx context.Context, entryID string) error {
	e.mu.Lock()
	if e.findEntry(entryID) == nil {
		e.mu.Unlock()
		return fmt.Errorf("delete %s: %w", entryID, ErrEntryNotFound)
	}
	durableID, persisted := e.entryDurable[entryID]
	e.mu.Unlock()

	if persisted {
		if err := e.repo.DeleteEntry(ctx, durableID); err != nil {
			return fmt.Errorf("delete %s: %w", entryID, err)
		}
	}

	e.mu.Lock()
	for i, entry := range e.entries {
		if entry.ID != entryID {
			continue
		}
		for _, resp := range entry.Responses {
			delete(e.responseDurable, resp.ID)
			if lr, ok := e.live[resp.ID]; ok {
				lr.detach()
				delete(e.live, resp.ID)
			}
		}
		e.entries = append(e.entries[:i:i], e.entries[i+1:]...)
		break
	}
	delete(e.entryDurable, entryID)
	e.mu.Unlock()

	e.publish(domain.Event{Type: domain.EventEntryDeleted, EntryID: entryID})
	return nil
}

// LoadHistory replaces the in-memory list with the store's records and rebuilds both id
// maps from scratch. Responses still streaming keep their live in-memory state.
func (e *Executor) LoadHistory(ctx context.Context, query domain.HistoryQuery) error {
	if query.Limit <= 0 {
		query.Limit = domain.DefaultHistoryLimit
	}
	stored, err := e.repo.ListEntries(ctx, query)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	entries := make([]*domain.PromptEntry, 0, len(stored))
	entryDurable := make(map[string]int64, len(stored))
	responseDurable := make(map[string]int64)

	e.mu.Lock()
	for _, record := range stored {
		entry := record.Entry
		entry.Responses = make([]*domain.PromptResponse, 0, len(record.Responses))
		for _, sr := range record.Responses {
			resp := sr.Response
			ptr := &resp
			if lr, ok := e.live[resp.ID]; ok {
				ptr = lr.resp
			}
			entry.Responses = append(entry.Responses, ptr)
			responseDurable[resp.ID] = sr.DurableID
		}
		entries = append(entries, &entry)
		entryDurable[entry.ID] = record.DurableID
	}
	e.entries = entries
	e.entryDurable = entryDurable
	e.responseDurable = responseDurable
	e.mu.Unlock()

	e.publish(domain.Event{Type: domain.EventHistoryReloaded})
	return nil
}

// Entries returns a snapshot of the in-memory list, newest first.
func (e *Executor) Entries() []*domain.PromptEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.PromptEntry, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, entry.Clone())
	}
	return out
}

// Entry returns a snapshot of one entry.
func (e *Executor) Entry(entryID string) (*domain.PromptEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry := e.findEntry(entryID)
	if entry == nil {
		return nil, false
	}
	return entry.Clone(), true
}

// EntryIDForDurable maps a durable entry id back to its volatile id.
func (e *Executor) EntryIDForDurable(durableID int64) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, durable := range e.entryDurable {
		if durable == durableID {
			return id, true
		}
	}
	return "", false
}

// DurableEntryID reports the durable id of an entry, if it was persisted.
func (e *Executor) DurableEntryID(entryID string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.entryDurable[entryID]
	return id, ok
}

// DurableResponseID reports the durable id of a response, if it was persisted.
func (e *Executor) DurableResponseID(responseID string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.responseDurable[responseID]
	return id, ok
}

func (e *Executor) findEntry(entryID string) *domain.PromptEntry {
	for _, entry := range e.entries {
		if entry.ID == entryID {
			return entry
		}
	}
	return nil
}

func (e *Executor) publish(evt domain.Event) {
	if e.events == nil {
		return
	}
	if evt.Time.IsZero() {
		evt.Time = e.now()
	}
	e.events.Publish(evt)
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}
