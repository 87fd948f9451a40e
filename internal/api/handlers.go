// Package api exposes the orchestration engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	orchestratorx "github.com/omniretail/orchestrator/agent/agents/orchestrator"
	contractx "github.com/omniretail/orchestrator/agent/contract"
	registryx "github.com/omniretail/orchestrator/agent/registry"
)

// Pinger probes one backing system for the health surface.
type Pinger func(ctx context.Context) error

// Handlers holds all handler dependencies.
type Handlers struct {
	Orch     *orchestratorx.Orchestrator
	Registry *registryx.Registry
	Pingers  map[string]Pinger
	Version  string

	now func() time.Time
}

func NewHandlers(orch *orchestratorx.Orchestrator, reg *registryx.Registry, pingers map[string]Pinger, version string) *Handlers {
	return &Handlers{
		Orch:     orch,
		Registry: reg,
		Pingers:  pingers,
		Version:  version,
		now:      time.Now,
	}
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
}

type queryResponse struct {
	Timestamp         time.Time      `json:"timestamp"`
	Query             string         `json:"query"`
	SessionID         string         `json:"session_id"`
	TurnID            string         `json:"turn_id"`
	AgentsInvoked     []string       `json:"agents_invoked"`
	NarrativeResponse string         `json:"narrative_response"`
	PartialFailure    bool           `json:"partial_failure"`
	EntitiesResolved  map[string]any `json:"entities_resolved,omitempty"`
}

func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Orch.HandleQuery(r.Context(), contractx.Query{
		Text:       req.Query,
		SessionID:  strings.TrimSpace(req.SessionID),
		UserID:     strings.TrimSpace(req.UserID),
		ReceivedAt: h.now().UTC(),
	})
	if err != nil {
		respondQueryError(w, err)
		return
	}

	entities := make(map[string]any, len(result.EntitiesResolved))
	for kind, v := range result.EntitiesResolved {
		entities[string(kind)] = map[string]string{
			"value":      v.Value,
			"provenance": string(v.Provenance),
		}
	}
	agents := result.AgentsInvoked
	if agents == nil {
		agents = []string{}
	}

	respondJSON(w, http.StatusOK, queryResponse{
		Timestamp:         result.Timestamp,
		Query:             req.Query,
		SessionID:         req.SessionID,
		TurnID:            result.TurnID,
		AgentsInvoked:     agents,
		NarrativeResponse: result.NarrativeText,
		PartialFailure:    result.PartialFailure,
		EntitiesResolved:  entities,
	})
}

func respondQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestratorx.ErrInvalidSession),
		errors.Is(err, orchestratorx.ErrInvalidQuery),
		errors.Is(err, orchestratorx.ErrQueryTooLong),
		errors.Is(err, contractx.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, contractx.ErrSessionLimit):
		respondError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Error().Err(err).Msg("query handling failed")
		respondError(w, http.StatusInternalServerError, "query handling failed")
	}
}

func (h *Handlers) ResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.Orch.ResetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, orchestratorx.ErrInvalidSession) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("session reset failed")
		respondError(w, http.StatusInternalServerError, "session reset failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ConversationHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	history, err := h.Orch.History(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("history lookup failed")
		respondError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      history,
	})
}

type agentStatus struct {
	Name     string   `json:"name"`
	Tier     int      `json:"tier"`
	Required []string `json:"required_entities"`
	Produced []string `json:"produced_entities,omitempty"`
	Deadline string   `json:"deadline"`
}

func (h *Handlers) AgentsStatus(w http.ResponseWriter, r *http.Request) {
	names := h.Registry.Names()
	statuses := make([]agentStatus, 0, len(names))
	for _, name := range names {
		d, ok := h.Registry.Describe(name)
		if !ok {
			continue
		}
		statuses = append(statuses, agentStatus{
			Name:     name,
			Tier:     d.Tier,
			Required: kindsToStrings(d.Required),
			Produced: kindsToStrings(d.Produced),
			Deadline: time.Duration(d.Deadline).String(),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"agents": statuses})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	backends := make(map[string]string, len(h.Pingers))
	healthy := true
	for name, ping := range h.Pingers {
		if err := ping(ctx); err != nil {
			backends[name] = err.Error()
			healthy = false
			continue
		}
		backends[name] = "healthy"
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, map[string]any{
		"status":   status,
		"version":  h.Version,
		"backends": backends,
	})
}

func kindsToStrings[T ~string](kinds []T) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
