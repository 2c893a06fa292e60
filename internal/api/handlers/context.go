package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lucidchat/ctxengine/internal/assembler"
	"github.com/lucidchat/ctxengine/internal/assembly"
	"github.com/lucidchat/ctxengine/internal/audit"
	"github.com/lucidchat/ctxengine/internal/ctxerrors"
	"github.com/lucidchat/ctxengine/internal/search"
	"github.com/lucidchat/ctxengine/internal/webhook"
)

// ContextHandler exposes the context assembler (C5) and hybrid search
// engine (C9) over HTTP. Every assembly and search is audit-logged, and
// a degraded result (semantic merge skipped, embeddings unavailable)
// fires a webhook so subscribers can alert on assembly quality without
// polling.
type ContextHandler struct {
	assembler *assembler.Assembler
	search    *search.Engine
	webhooks  *webhook.Service
	audit     *audit.Service
}

func NewContextHandler(a *assembler.Assembler, s *search.Engine, w *webhook.Service, au *audit.Service) *ContextHandler {
	return &ContextHandler{assembler: a, search: s, webhooks: w, audit: au}
}

type assembleRequestBody struct {
	Query          string   `json:"query"`
	ConversationID string   `json:"conversation_id"`
	Budget         int      `json:"budget"`
	Strategy       string   `json:"strategy"`
	MinRelevance   *float64 `json:"min_relevance"`
	TimeWindowMS   int64    `json:"time_window"`
	FocusTopics    []string `json:"focus_topics"`
	IncludeRecent  bool     `json:"include_recent"`
}

func (h *ContextHandler) Assemble(w http.ResponseWriter, r *http.Request) {
	var body assembleRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var convID uuid.UUID
	if body.ConversationID != "" {
		parsed, err := uuid.Parse(body.ConversationID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation_id"})
			return
		}
		convID = parsed
	}

	req := assembly.Request{
		Query:          body.Query,
		ConversationID: convID,
		Budget:         body.Budget,
		Strategy:       assembly.StrategyName(body.Strategy),
		MinRelevance:   body.MinRelevance,
		TimeWindow:     durationFromMillis(body.TimeWindowMS),
		FocusTopics:    body.FocusTopics,
		IncludeRecent:  body.IncludeRecent,
	}

	result, err := h.assembler.Assemble(r.Context(), req)
	if err != nil {
		writeJSON(w, statusForAssembleErr(err), map[string]string{"error": err.Error()})
		return
	}

	h.logAssemble(r.Context(), req, result)

	writeJSON(w, http.StatusOK, result)
}

func (h *ContextHandler) logAssemble(ctx context.Context, req assembly.Request, result *assembler.Result) {
	if h.audit != nil {
		var resourceID *uuid.UUID
		if req.ConversationID != uuid.Nil {
			resourceID = &req.ConversationID
		}
		_ = h.audit.Log(ctx, audit.LogEntry{
			Action:       "context.assemble",
			ResourceType: "conversation",
			ResourceID:   resourceID,
			Details: map[string]interface{}{
				"strategy":    string(result.Strategy),
				"budget":      req.Budget,
				"token_count": result.TokenCount,
				"items":       result.Metrics.ItemsIncluded,
				"from_cache":  result.FromCache,
				"degraded":    result.Degraded,
			},
		})
	}

	if result.Degraded && h.webhooks != nil {
		_ = h.webhooks.Dispatch(ctx, "context.assemble.degraded", map[string]interface{}{
			"conversation_id": req.ConversationID,
			"strategy":        string(result.Strategy),
			"items_included":  result.Metrics.ItemsIncluded,
		})
	}
}

type searchRequestBody struct {
	Query             string          `json:"query"`
	ConversationID    string          `json:"conversation_id"`
	Limit             int             `json:"limit"`
	Offset            int             `json:"offset"`
	Strategy          string          `json:"strategy"`
	Weights           *search.Weights `json:"weights"`
	SemanticThreshold float64         `json:"semantic_threshold"`
}

func (h *ContextHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	var convID uuid.UUID
	if body.ConversationID != "" {
		parsed, err := uuid.Parse(body.ConversationID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation_id"})
			return
		}
		convID = parsed
	}

	req := search.Request{
		Query:             body.Query,
		ConversationID:    convID,
		Limit:             body.Limit,
		Offset:            body.Offset,
		Strategy:          search.Strategy(body.Strategy),
		SemanticThreshold: body.SemanticThreshold,
	}
	if body.Weights != nil {
		req.Weights = *body.Weights
	}

	resp, err := h.search.Search(r.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ctxerrors.ErrInvalidQuery) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	h.logSearch(r.Context(), req, resp)

	writeJSON(w, http.StatusOK, resp)
}

func (h *ContextHandler) logSearch(ctx context.Context, req search.Request, resp *search.Response) {
	if h.audit != nil {
		var resourceID *uuid.UUID
		if req.ConversationID != uuid.Nil {
			resourceID = &req.ConversationID
		}
		_ = h.audit.Log(ctx, audit.LogEntry{
			Action:       "context.search",
			ResourceType: "conversation",
			ResourceID:   resourceID,
			Details: map[string]interface{}{
				"strategy": string(req.Strategy),
				"results":  len(resp.Results),
				"degraded": resp.Metrics.Degraded,
			},
		})
	}

	if resp.Metrics.Degraded && h.webhooks != nil {
		_ = h.webhooks.Dispatch(ctx, "context.search.degraded", map[string]interface{}{
			"conversation_id": req.ConversationID,
			"strategy":        string(req.Strategy),
			"results":         len(resp.Results),
		})
	}
}

func statusForAssembleErr(err error) int {
	switch {
	case errors.Is(err, ctxerrors.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ctxerrors.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func durationFromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
