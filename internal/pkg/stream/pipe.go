// Package stream provides the single-reader chunk stream every adapter returns
// from a streaming call.
//
// A Pipe delivers content chunks in order and finishes with exactly one terminal
// chunk (IsComplete set, empty content, usage and finish metadata). A producer
// failure is delivered to the reader as an error instead of a terminal chunk, and a
// pipe whose producer gives up without either is reported as a parse error so a
// truncated stream is never mistaken for a finished one.
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/doeshing/multiprompt/internal/domain"
)

// ErrClosed is returned to producers after the reader closed the pipe.
var ErrClosed = errors.New("stream: closed by reader")

const defaultBuffer = 16

type item struct {
	chunk domain.Chunk
	err   error
}

// Pipe is a chunk stream fed by one producer and drained by one reader.
type Pipe struct {
	provider string
	ch       chan item
	done     chan struct{}

	closeOnce  sync.Once
	finishOnce sync.Once

	// reader-side state, touched only by the reader goroutine
	finished bool
}

// NewPipe creates an empty pipe. provider labels errors raised by the pipe itself.
func NewPipe(provider string) *Pipe {
	return &Pipe{
		provider: provider,
		ch:       make(chan item, defaultBuffer),
		done:     make(chan struct{}),
	}
}

// Run starts produce in its own goroutine and returns the pipe it feeds.
// The context passed to produce is cancelled when the reader closes the pipe.
// A nil error from produce completes the stream with the returned metadata.
func Run(ctx context.Context, provider string, produce func(ctx context.Context, emit func(string) error) (*domain.ChunkMetadata, error)) *Pipe {
	p := NewPipe(provider)
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		go func() {
			select {
			case <-p.done:
				cancel()
			case <-runCtx.Done():
			}
		}()
		meta, err := produce(runCtx, p.Send)
		if err != nil {
			p.Fail(err)
			return
		}
		p.Complete(meta)
	}()
	return p
}

// FromResponse wraps a synchronous response as a one-chunk stream.
func FromResponse(provider string, resp domain.TextResponse) *Pipe {
	p := NewPipe(provider)
	if resp.Content != "" {
		p.ch <- item{chunk: domain.Chunk{Content: resp.Content}}
	}
	p.Complete(&domain.ChunkMetadata{Usage: resp.Usage, FinishReason: resp.FinishReason})
	return p
}

// Send forwards one content chunk. Empty content is dropped.
// It blocks while the buffer is full and returns ErrClosed once the reader is gone.
func (p *Pipe) Send(content string) error {
	if content == "" {
		return nil
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.ch <- item{chunk: domain.Chunk{Content: content}}:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// Complete delivers the terminal chunk and ends the stream.
func (p *Pipe) Complete(meta *domain.ChunkMetadata) {
	p.finish(item{chunk: domain.Chunk{IsComplete: true, Metadata: meta}})
}

// Fail ends the stream with err, translated into an AdapterError.
func (p *Pipe) Fail(err error) {
	if err == nil {
		err = domain.NewAdapterError(p.provider, domain.ErrCodeUnknown, "stream failed")
	}
	p.finish(item{err: domain.AsAdapterError(p.provider, err)})
}

// Abort ends the stream without a terminal chunk; the reader sees a parse error.
func (p *Pipe) Abort() {
	p.finishOnce.Do(func() { close(p.ch) })
}

func (p *Pipe) finish(last item) {
	p.finishOnce.Do(func() {
		select {
		case p.ch <- last:
		case <-p.done:
		}
		close(p.ch)
	})
}

// Next returns the next chunk. After the terminal chunk it returns io.EOF.
func (p *Pipe) Next(ctx context.Context) (domain.Chunk, error) {
	if p.finished {
		return domain.Chunk{}, io.EOF
	}
	select {
	case <-p.done:
		return domain.Chunk{}, ErrClosed
	default:
	}
	select {
	case it, ok := <-p.ch:
		if !ok {
			p.finished = true
			return domain.Chunk{}, domain.NewAdapterError(p.provider, domain.ErrCodeParse, "stream ended without completion")
		}
		if it.err != nil {
			p.finished = true
			return domain.Chunk{}, it.err
		}
		if it.chunk.IsComplete {
			p.finished = true
		}
		return it.chunk, nil
	case <-ctx.Done():
		return domain.Chunk{}, domain.AsAdapterError(p.provider, ctx.Err())
	}
}

// Close tells the producer to stop. It is safe to call more than once.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// Done is closed when the reader closes the pipe.
func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

// Reader is the read side of any chunk stream.
type Reader interface {
	Next(ctx context.Context) (domain.Chunk, error)
}

// Collect drains r and returns the aggregated response.
// On failure the partial content read so far is returned with the error.
func Collect(ctx context.Context, r Reader) (domain.TextResponse, error) {
	var (
		builder strings.Builder
		resp    domain.TextResponse
	)
	for {
		chunk, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			resp.Content = builder.String()
			return resp, err
		}
		builder.WriteString(chunk.Content)
		if chunk.IsComplete {
			if chunk.Metadata != nil {
				resp.Usage = chunk.Metadata.Usage
				resp.FinishReason = chunk.Metadata.FinishReason
			}
			break
		}
	}
	resp.Content = builder.String()
	return resp, nil
}
