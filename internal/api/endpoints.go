// Package api provides the HTTP endpoints for the recommendation engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aryasuneesh/feature-discovery/internal/engine/contextfact"
	"github.com/aryasuneesh/feature-discovery/internal/engine/event"
	"github.com/aryasuneesh/feature-discovery/internal/engine/recommend"
)

// ContextResponse is the response for /context.
type ContextResponse struct {
	ContextID string   `json:"context_id"`
	UserID    string   `json:"user_id"`
	Intents   []string `json:"intents"`
}

// RecommendRequest is the request for /recommendations. Signals and Ts
// are optional: when present they are submitted as a fresh context
// before matching.
type RecommendRequest struct {
	UserID  string         `json:"user_id"`
	K       int            `json:"k,omitempty"`
	Ts      int64          `json:"ts,omitempty"`
	Signals map[string]any `json:"signals,omitempty"`
}

// RecommendResponse is the response for /recommendations.
type RecommendResponse struct {
	UserID          string                     `json:"user_id"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

// EventResponse is the response for /events.
type EventResponse struct {
	UserID    string `json:"user_id"`
	FeatureID string `json:"feature_id"`
	Stage     string `json:"stage"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the response for /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	DB       string `json:"db"`
	Semantic string `json:"semantic"`
}

// Handler provides HTTP handlers for the engine API.
type Handler struct {
	engine *recommend.Orchestrator
	logger *slog.Logger

	// DBCheck reports storage health for /healthz. Optional; when nil the
	// db is reported healthy.
	DBCheck func(context.Context) error

	// SemanticConfigured reports whether a similarity collaborator is
	// wired, for /healthz.
	SemanticConfigured bool
}

// NewHandler creates a new API handler.
func NewHandler(engine *recommend.Orchestrator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /context", h.HandleContext)
	mux.HandleFunc("POST /recommendations", h.HandleRecommendations)
	mux.HandleFunc("POST /events", h.HandleEvent)
	mux.HandleFunc("GET /insights/users/{user_id}", h.HandleUserInsights)
	mux.HandleFunc("GET /insights/features/{feature_id}", h.HandleFeatureInsights)
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
}

// HandleContext handles the /context endpoint.
func (h *Handler) HandleContext(w http.ResponseWriter, r *http.Request) {
	var sub contextfact.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON request body")
		return
	}

	fact, err := h.engine.SubmitContext(sub)
	if err != nil {
		var verr *contextfact.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, http.StatusBadRequest, "invalid_context", verr.Error())
			return
		}
		h.logger.Error("context submission failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "context_failed", "Failed to process context")
		return
	}

	h.writeJSON(w, http.StatusOK, ContextResponse{
		ContextID: fact.ID,
		UserID:    fact.UserID,
		Intents:   fact.Intents,
	})
}

// HandleRecommendations handles the /recommendations endpoint.
func (h *Handler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON request body")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}

	var sub *contextfact.Submission
	if len(req.Signals) > 0 {
		sub = &contextfact.Submission{
			UserID:  req.UserID,
			Ts:      req.Ts,
			Signals: req.Signals,
		}
	}

	recs, err := h.engine.Recommend(r.Context(), req.UserID, sub, req.K)
	if err != nil {
		var verr *contextfact.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, http.StatusBadRequest, "invalid_context", verr.Error())
			return
		}
		h.logger.Error("recommendation failed", "user_id", req.UserID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "recommend_failed", "Failed to compute recommendations")
		return
	}

	h.writeJSON(w, http.StatusOK, RecommendResponse{
		UserID:          req.UserID,
		Recommendations: recs,
	})
}

// HandleEvent handles the /events endpoint.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var ev event.InteractionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON request body")
		return
	}
	if ev.UserID == "" || ev.FeatureID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_fields", "user_id and feature_id are required")
		return
	}
	if !event.ValidKind(string(ev.Kind)) {
		h.writeError(w, http.StatusBadRequest, "invalid_kind", "Unknown event kind")
		return
	}

	st, err := h.engine.RecordEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, recommend.ErrUnknownFeature) {
			h.writeError(w, http.StatusNotFound, "unknown_feature", "Feature is not in the catalog")
			return
		}
		h.logger.Error("event recording failed",
			"user_id", ev.UserID, "feature_id", ev.FeatureID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "event_failed", "Failed to record event")
		return
	}

	h.writeJSON(w, http.StatusOK, EventResponse{
		UserID:    st.UserID,
		FeatureID: st.FeatureID,
		Stage:     string(st.Stage),
	})
}

// HandleUserInsights handles the /insights/users/{user_id} endpoint.
func (h *Handler) HandleUserInsights(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}

	insights, err := h.engine.Insights(r.Context(), userID)
	if err != nil {
		h.logger.Error("user insights failed", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "insights_failed", "Failed to compute insights")
		return
	}
	h.writeJSON(w, http.StatusOK, insights)
}

// HandleFeatureInsights handles the /insights/features/{feature_id} endpoint.
func (h *Handler) HandleFeatureInsights(w http.ResponseWriter, r *http.Request) {
	featureID := r.PathValue("feature_id")
	if featureID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_feature_id", "feature_id is required")
		return
	}

	insights, err := h.engine.FeatureStats(r.Context(), featureID)
	if err != nil {
		if errors.Is(err, recommend.ErrUnknownFeature) {
			h.writeError(w, http.StatusNotFound, "unknown_feature", "Feature is not in the catalog")
			return
		}
		h.logger.Error("feature insights failed", "feature_id", featureID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "insights_failed", "Failed to compute insights")
		return
	}
	h.writeJSON(w, http.StatusOK, insights)
}

// HandleHealthz handles the /healthz endpoint. A failing storage check
// degrades the status and answers 503.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", DB: "ok", Semantic: "disabled"}
	if h.SemanticConfigured {
		resp.Semantic = "configured"
	}
	if h.DBCheck != nil {
		if err := h.DBCheck(r.Context()); err != nil {
			h.logger.Error("health check: storage unavailable", "error", err)
			resp.Status = "degraded"
			resp.DB = "unavailable"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, errorCode, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
