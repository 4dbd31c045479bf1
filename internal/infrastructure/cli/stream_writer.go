package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/doeshing/multiprompt/internal/domain"
)

// streamWriter interleaves deltas from concurrent legs, printing a
// "[provider/model]" header whenever the active leg changes.
// It is driven from a single goroutine.
type streamWriter struct {
	out     io.Writer
	current string
	midLine bool
	printed map[string]string
}

// NewStreamWriter builds a streamWriter for stdout.
func NewStreamWriter(out io.Writer) *streamWriter {
	return &streamWriter{out: out, printed: make(map[string]string)}
}

// WriteDelta appends text to a leg's output.
func (s *streamWriter) WriteDelta(responseID string, target domain.Target, text string) {
	if text == "" {
		return
	}
	s.switchTo(responseID, target)
	fmt.Fprint(s.out, text)
	s.printed[responseID] += text
	s.midLine = !strings.HasSuffix(text, "\n")
}

// Finish prints whatever the final response holds beyond what was streamed.
// Deltas can be dropped by a slow consumer; the final content is authoritative.
func (s *streamWriter) Finish(resp *domain.PromptResponse) {
	printed := s.printed[resp.ID]
	switch {
	case resp.Content == printed:
	case strings.HasPrefix(resp.Content, printed):
		s.WriteDelta(resp.ID, resp.Target(), resp.Content[len(printed):])
	default:
		s.switchTo("", resp.Target())
		s.current = resp.ID
		fmt.Fprintln(s.out, resp.Content)
		s.printed[resp.ID] = resp.Content
		s.midLine = false
	}
}

// Done terminates the last partial line.
func (s *streamWriter) Done() {
	if s.midLine {
		fmt.Fprintln(s.out)
		s.midLine = false
	}
}

func (s *streamWriter) switchTo(responseID string, target domain.Target) {
	if responseID != "" && responseID == s.current {
		return
	}
	s.Done()
	if s.current != "" {
		fmt.Fprintln(s.out)
	}
	fmt.Fprintf(s.out, "[%s]\n", target)
	s.current = responseID
}
