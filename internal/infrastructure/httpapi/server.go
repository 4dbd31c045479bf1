// Package httpapi exposes the executor and the orchestrator over HTTP.
//
// Routes live under /v1; /health is unauthenticated and cheap. Live state changes
// are pushed to clients as server-sent events on /v1/events.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/doeshing/multiprompt/internal/application/execution"
	"github.com/doeshing/multiprompt/internal/application/orchestrator"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

const shutdownTimeout = 10 * time.Second

// Executor is the part of the execution layer the API drives.
type Executor interface {
	Begin(ctx context.Context, req execution.SubmitRequest) (*execution.Submission, error)
	CancelResponse(responseID string) error
	DeleteEntry(ctx context.Context, entryID string) error
	LoadHistory(ctx context.Context, query domain.HistoryQuery) error
	Entries() []*domain.PromptEntry
	Entry(entryID string) (*domain.PromptEntry, bool)
}

// Orchestrator is the part of the orchestrator the API exposes directly.
type Orchestrator interface {
	GenerateImage(ctx context.Context, providerID, prompt string, opts domain.ImageOptions) domain.ExecutionResult[domain.ImageResponse]
	AllModels(ctx context.Context) []domain.ProviderModels
	Providers() []orchestrator.ProviderStatus
	CheckHealth(ctx context.Context, providerID string) domain.ProviderHealth
	CheckAllHealth(ctx context.Context) map[string]domain.ProviderHealth
}

// Subscriber hands out event feeds.
type Subscriber interface {
	Subscribe(types ...domain.EventType) (<-chan domain.Event, func())
}

// Server holds the handlers' dependencies.
type Server struct {
	exec           Executor
	orch           Orchestrator
	events         Subscriber
	logger         ports.Logger
	defaultTargets []domain.Target
	keepAlive      time.Duration
}

// New builds a server. defaultTargets are used for prompts that name none.
func New(exec Executor, orch Orchestrator, events Subscriber, logger ports.Logger, defaultTargets []domain.Target) *Server {
	return &Server{
		exec:           exec,
		orch:           orch,
		events:         events,
		logger:         logger,
		defaultTargets: defaultTargets,
		keepAlive:      15 * time.Second,
	}
}

// Router wires every route.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/prompts", func(r chi.Router) {
			r.Post("/", s.submitPrompt) // POST /v1/prompts
		})
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", s.listEntries)          // GET /v1/entries
			r.Post("/reload", s.reloadEntries) // POST /v1/entries/reload
			r.Get("/{id}", s.getEntry)         // GET /v1/entries/{id}
			r.Delete("/{id}", s.deleteEntry)   // DELETE /v1/entries/{id}
		})
		r.Post("/responses/{id}/cancel", s.cancelResponse)
		r.Post("/images", s.generateImage)
		r.Get("/models", s.listModels)
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", s.listProviders)
			r.Get("/health", s.allHealth)
			r.Get("/{id}/health", s.providerHealth)
		})
		r.Get("/events", s.streamEvents)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}
