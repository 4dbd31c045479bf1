package execution

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
)

// liveResponse is the executor's handle on one leg that has not reached a terminal state.
// Every field except writeMu is guarded by Executor.mu.
type liveResponse struct {
	resp   *domain.PromptResponse
	target domain.Target

	durableID int64
	cancel    context.CancelFunc
	err       *domain.AdapterError

	// timer is the pending debounced write; gen invalidates callbacks of replaced timers.
	timer *time.Timer
	gen   uint64

	// revision counts in-memory changes; written is the last revision stored durably.
	revision uint64
	written  uint64

	finalized bool
	detached  bool

	// writeMu serializes durable writes of this response.
	writeMu sync.Mutex

	// publishMu orders this response's events; no delta is published after done.
	publishMu sync.Mutex
	doneSent  bool
}

// runLeg drives one target to a terminal state and reports its outcome.
func (e *Executor) runLeg(ctx context.Context, lr *liveResponse, prompt string, opts domain.GenerationOptions) legOutcome {
	start := e.now()
	e.publishBeforeDone(lr, domain.EventResponseStarted, "")

	if !opts.Stream {
		result := e.gen.GenerateText(ctx, lr.target.ProviderID, prompt, opts)
		if !result.Success {
			return e.fail(ctx, lr, result.Err, start)
		}
		return e.finalize(lr, func(resp *domain.PromptResponse) {
			resp.Status = domain.ResponseSuccess
			resp.Content = result.Data.Content
			resp.Duration = e.now().Sub(start)
		})
	}

	result := e.gen.StreamText(ctx, lr.target.ProviderID, prompt, opts)
	if !result.Success {
		return e.fail(ctx, lr, result.Err, start)
	}
	chunks := result.Data
	defer chunks.Close()

	e.markStreaming(lr)
	for {
		chunk, err := chunks.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = domain.NewAdapterError(lr.target.ProviderID, domain.ErrCodeParse, "stream ended without a final chunk")
			}
			return e.fail(ctx, lr, domain.AsAdapterError(lr.target.ProviderID, err), start)
		}
		if chunk.Content != "" {
			e.appendDelta(lr, chunk.Content)
		}
		if chunk.IsComplete {
			return e.finalize(lr, func(resp *domain.PromptResponse) {
				resp.Status = domain.ResponseSuccess
				resp.Duration = e.now().Sub(start)
			})
		}
	}
}

// fail settles a leg that returned an error. A cancelled context means the leg was
// cancelled rather than failed; a deadline stays a timeout error.
func (e *Executor) fail(ctx context.Context, lr *liveResponse, adapterErr *domain.AdapterError, start time.Time) legOutcome {
	if errors.Is(ctx.Err(), context.Canceled) {
		return e.finalize(lr, func(resp *domain.PromptResponse) {
			resp.Status = domain.ResponseCancelled
			resp.Error = "cancelled"
			resp.Duration = e.now().Sub(start)
		})
	}
	if adapterErr == nil {
		adapterErr = domain.NewAdapterError(lr.target.ProviderID, domain.ErrCodeUnknown, "generation failed")
	}
	return e.finalize(lr, func(resp *domain.PromptResponse) {
		resp.Status = domain.ResponseError
		resp.Error = adapterErr.Message
		resp.ErrorCode = adapterErr.Code
		resp.Duration = e.now().Sub(start)
		lr.err = adapterErr
	})
}

func (e *Executor) markStreaming(lr *liveResponse) {
	e.mu.Lock()
	if lr.finalized {
		e.mu.Unlock()
		return
	}
	lr.resp.Status = domain.ResponseStreaming
	lr.revision++
	e.mu.Unlock()

	e.flush(lr)
}

// appendDelta applies a streamed piece in memory and re-arms the debounced write.
func (e *Executor) appendDelta(lr *liveResponse, delta string) {
	e.mu.Lock()
	if lr.finalized {
		e.mu.Unlock()
		return
	}
	lr.resp.Content += delta
	lr.revision++
	lr.gen++
	gen := lr.gen
	if lr.timer != nil {
		lr.timer.Stop()
	}
	lr.timer = time.AfterFunc(e.opts.Debounce, func() {
		e.mu.Lock()
		current := lr.gen == gen && !lr.finalized
		e.mu.Unlock()
		if current {
			e.flush(lr)
		}
	})
	e.mu.Unlock()

	e.publishBeforeDone(lr, domain.EventResponseDelta, delta)
}

// publishBeforeDone publishes a non-terminal event unless done was already sent.
func (e *Executor) publishBeforeDone(lr *liveResponse, typ domain.EventType, delta string) {
	lr.publishMu.Lock()
	defer lr.publishMu.Unlock()
	if !lr.doneSent {
		e.publishResponse(lr, typ, delta)
	}
}

// finalize applies the terminal transition exactly once, then writes it synchronously.
// Later calls leave the response untouched and report the state already reached.
func (e *Executor) finalize(lr *liveResponse, apply func(*domain.PromptResponse)) legOutcome {
	e.mu.Lock()
	if lr.finalized {
		outcome := legOutcome{target: lr.target, status: lr.resp.Status, err: lr.err}
		e.mu.Unlock()
		return outcome
	}
	apply(lr.resp)
	lr.resp.Cancellable = false
	lr.finalized = true
	lr.revision++
	lr.gen++
	if lr.timer != nil {
		lr.timer.Stop()
		lr.timer = nil
	}
	if lr.cancel != nil {
		lr.cancel()
	}
	delete(e.live, lr.resp.ID)
	outcome := legOutcome{target: lr.target, status: lr.resp.Status, err: lr.err}
	e.mu.Unlock()

	e.flush(lr)
	lr.publishMu.Lock()
	lr.doneSent = true
	e.publishResponse(lr, domain.EventResponseDone, "")
	lr.publishMu.Unlock()
	return outcome
}

// detach drops a leg whose entry is being deleted. No further writes happen for it.
// The caller holds e.mu.
func (lr *liveResponse) detach() {
	lr.finalized = true
	lr.detached = true
	lr.gen++
	if lr.timer != nil {
		lr.timer.Stop()
		lr.timer = nil
	}
	if lr.cancel != nil {
		lr.cancel()
	}
}

// flush writes the latest in-memory state if it is newer than what was last stored.
func (e *Executor) flush(lr *liveResponse) {
	lr.writeMu.Lock()
	defer lr.writeMu.Unlock()

	e.mu.Lock()
	if lr.detached || lr.durableID == 0 || lr.revision <= lr.written {
		e.mu.Unlock()
		return
	}
	snapshot := *lr.resp
	revision := lr.revision
	durableID := lr.durableID
	e.mu.Unlock()

	if err := e.repo.UpdateResponse(context.Background(), durableID, snapshot); err != nil {
		e.logger.Error("persist response update failed", err, map[string]interface{}{
			"response_id": snapshot.ID,
			"status":      string(snapshot.Status),
		})
		return
	}

	e.mu.Lock()
	if revision > lr.written {
		lr.written = revision
	}
	e.mu.Unlock()
}

func (e *Executor) publishResponse(lr *liveResponse, typ domain.EventType, delta string) {
	if e.events == nil {
		return
	}
	e.mu.Lock()
	evt := domain.Event{
		Type:       typ,
		EntryID:    lr.resp.EntryID,
		ResponseID: lr.resp.ID,
		ProviderID: lr.resp.ProviderID,
		ModelID:    lr.resp.ModelID,
		Status:     string(lr.resp.Status),
		Delta:      delta,
		Error:      lr.resp.Error,
	}
	e.mu.Unlock()
	e.publish(evt)
}
