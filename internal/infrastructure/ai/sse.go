package ai

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxSSELineSize bounds one SSE line; long completions exceed bufio's 64 KiB default.
const maxSSELineSize = 1024 * 1024

type sseEvent struct {
	Event string
	Data  string
}

// sseScanner reads Server-Sent Events. It joins multi-line data fields, skips
// comments, and treats the OpenAI "[DONE]" sentinel as end of stream.
type sseScanner struct {
	scanner *bufio.Scanner
	// done is set once the [DONE] sentinel was read.
	done bool
}

func newSSEScanner(reader io.Reader) *sseScanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &sseScanner{scanner: scanner}
}

// Next returns the next event, or io.EOF when the stream is exhausted.
func (s *sseScanner) Next() (sseEvent, error) {
	var (
		event     string
		dataLines []string
	)

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				return sseEvent{Event: event, Data: strings.Join(dataLines, "\n")}, nil
			}
			event = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				s.done = true
				return sseEvent{}, io.EOF
			}
			dataLines = append(dataLines, data)
		}
	}

	if err := s.scanner.Err(); err != nil {
		return sseEvent{}, fmt.Errorf("read event stream: %w", err)
	}
	if len(dataLines) > 0 {
		return sseEvent{Event: event, Data: strings.Join(dataLines, "\n")}, nil
	}
	return sseEvent{}, io.EOF
}
