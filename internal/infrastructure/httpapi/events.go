package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
)

// streamEvents relays published events as server-sent events until the client leaves.
// GET /v1/events?types=response.delta,response.done narrows the feed.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var types []domain.EventType
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, domain.EventType(t))
			}
		}
	}

	events, unsubscribe := s.events.Subscribe(types...)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprint(bw, ": connected\n\n"); err != nil {
		return
	}
	_ = bw.Flush()
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(bw, ": ping\n\n"); err != nil {
				return
			}
		case evt, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(bw, evt); err != nil {
				s.logger.Debug("sse client write failed", map[string]interface{}{"error": err.Error()})
				return
			}
		}
		if err := bw.Flush(); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeEvent(bw *bufio.Writer, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(bw, "event: %s\ndata: %s\n\n", evt.Type, payload)
	return err
}
