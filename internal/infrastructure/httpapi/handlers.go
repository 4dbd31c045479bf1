package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/doeshing/multiprompt/internal/application/execution"
	"github.com/doeshing/multiprompt/internal/domain"
)

const maxBodyBytes = 1 << 20

// SubmitPromptRequest is the body of POST /v1/prompts.
type SubmitPromptRequest struct {
	Prompt       string   `json:"prompt"`
	Targets      []string `json:"targets,omitempty"`
	Stream       *bool    `json:"stream,omitempty"`
	ContinueFrom string   `json:"continue_from,omitempty"`
	// Async returns as soon as the legs started.
	Async        bool           `json:"async,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Temperature  *float64       `json:"temperature,omitempty"`
	MaxTokens    *int           `json:"max_tokens,omitempty"`
	TopP         *float64       `json:"top_p,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// SubmitPromptResponse is returned by POST /v1/prompts.
type SubmitPromptResponse struct {
	EntryID     string              `json:"entry_id"`
	ResponseIDs []string            `json:"response_ids"`
	Summary     *execution.Summary  `json:"summary,omitempty"`
	Entry       *domain.PromptEntry `json:"entry,omitempty"`
}

// ImageRequest is the body of POST /v1/images.
type ImageRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Size     string `json:"size,omitempty"`
	Quality  string `json:"quality,omitempty"`
	Style    string `json:"style,omitempty"`
	Count    *int   `json:"n,omitempty"`
}

// ReloadRequest is the optional body of POST /v1/entries/reload.
type ReloadRequest struct {
	Limit  int    `json:"limit,omitempty"`
	Search string `json:"search,omitempty"`
}

type errorBody struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code,omitempty"`
}

func (s *Server) submitPrompt(w http.ResponseWriter, r *http.Request) {
	var req SubmitPromptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	targets, err := s.resolveTargets(req.Targets)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	// legs outlive async requests, so they do not run under the request context
	ctx := r.Context()
	if req.Async {
		ctx = context.WithoutCancel(ctx)
	}
	sub, err := s.exec.Begin(ctx, execution.SubmitRequest{
		Prompt:         req.Prompt,
		Targets:        targets,
		Stream:         stream,
		ContinuationOf: req.ContinueFrom,
		Options: domain.GenerationOptions{
			SystemPrompt: req.SystemPrompt,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
			TopP:         req.TopP,
			Extra:        req.Extra,
		},
	})
	switch {
	case errors.Is(err, execution.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := SubmitPromptResponse{EntryID: sub.EntryID, ResponseIDs: sub.ResponseIDs}
	if req.Async {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	summary, err := sub.Wait(r.Context())
	if err != nil {
		// client went away; the legs were cancelled with the request
		return
	}
	resp.Summary = &summary
	if entry, ok := s.exec.Entry(sub.EntryID); ok {
		resp.Entry = entry
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) resolveTargets(raw []string) ([]domain.Target, error) {
	if len(raw) == 0 {
		if len(s.defaultTargets) == 0 {
			return nil, errors.New("no targets given and no default targets configured")
		}
		return s.defaultTargets, nil
	}
	targets := make([]domain.Target, 0, len(raw))
	for _, value := range raw {
		target, err := domain.ParseTarget(value)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.exec.Entries()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(entries) {
			entries = entries[:limit]
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": entries})
}

func (s *Server) reloadEntries(w http.ResponseWriter, r *http.Request) {
	var req ReloadRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := s.exec.LoadHistory(r.Context(), domain.HistoryQuery{Limit: req.Limit, Search: req.Search}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": s.exec.Entries()})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.exec.Entry(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	err := s.exec.DeleteEntry(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, execution.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) cancelResponse(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.CancelResponse(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) generateImage(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Provider == "" || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "provider and prompt are required")
		return
	}

	result := s.orch.GenerateImage(r.Context(), req.Provider, req.Prompt, domain.ImageOptions{
		Model:   req.Model,
		Size:    req.Size,
		Quality: req.Quality,
		Style:   req.Style,
		Count:   req.Count,
	})
	if !result.Success {
		writeAdapterError(w, result.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider":    result.ProviderID,
		"model":       result.ModelID,
		"duration_ms": result.DurationMS(),
		"data":        result.Data,
	})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": s.orch.AllModels(r.Context())})
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": s.orch.Providers()})
}

type healthView struct {
	Healthy   bool   `json:"healthy"`
	Message   string `json:"message"`
	LatencyMS int64  `json:"latency_ms"`
}

func toHealthView(h domain.ProviderHealth) healthView {
	return healthView{Healthy: h.Healthy, Message: h.Message, LatencyMS: h.LatencyMS()}
}

func (s *Server) allHealth(w http.ResponseWriter, r *http.Request) {
	results := s.orch.CheckAllHealth(r.Context())
	out := make(map[string]healthView, len(results))
	for id, health := range results {
		out[id] = toHealthView(health)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": out})
}

func (s *Server) providerHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toHealthView(s.orch.CheckHealth(r.Context(), chi.URLParam(r, "id"))))
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

func writeAdapterError(w http.ResponseWriter, err *domain.AdapterError) {
	if err == nil {
		writeError(w, http.StatusBadGateway, "provider call failed")
		return
	}
	status := http.StatusBadGateway
	if err.StatusCode >= 400 && err.StatusCode < 500 {
		status = err.StatusCode
	}
	writeJSON(w, status, errorBody{Error: err.Message, Code: err.Code})
}
