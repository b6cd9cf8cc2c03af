package worker

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/dialcraft/caliber/internal/learning"
	"github.com/dialcraft/caliber/pkg/models"
)

// RunRequest is the body of POST /api/learning/run.
type RunRequest struct {
	InteractionID string                   `json:"interaction_id,omitempty"`
	Limit         int                      `json:"limit,omitempty"`
	Overrides     models.LearningOverrides `json:"overrides,omitempty"`
	DryRun        bool                     `json:"dry_run,omitempty"`
	Verbose       bool                     `json:"verbose,omitempty"`
}

// handleLearningRun triggers one batch cycle.
// POST /api/learning/run
func (s *Service) handleLearningRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	result := s.engine.Run(r.Context(), learning.Options{
		InteractionID: req.InteractionID,
		Limit:         req.Limit,
		Overrides:     req.Overrides,
		DryRun:        req.DryRun,
		Verbose:       req.Verbose,
	})

	writeJSON(w, http.StatusOK, result)
}

// handleLearningPreview returns a dry-run preview of the next batch.
// GET /api/learning/preview?interaction_id=&limit=
func (s *Service) handleLearningPreview(w http.ResponseWriter, r *http.Request) {
	limit := parseLimitParam(r, learning.DefaultBatchLimit)

	result := s.engine.Run(r.Context(), learning.Options{
		InteractionID: r.URL.Query().Get("interaction_id"),
		Limit:         limit,
		DryRun:        true,
	})

	writeJSON(w, http.StatusOK, result)
}

// handleGetLearningConfig returns the effective learning configuration.
// GET /api/learning/config
func (s *Service) handleGetLearningConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Load(r.Context()))
}

// handlePutLearningConfig stores a new learning configuration document and
// invalidates the resolver cache so the next run observes it.
// PUT /api/learning/config
func (s *Service) handlePutLearningConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.LearningConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.settings.PutJSON(r.Context(), models.SettingLearningAdjustment, cfg); err != nil {
		http.Error(w, "failed to store config", http.StatusInternalServerError)
		return
	}
	s.resolver.Invalidate()

	writeJSON(w, http.StatusOK, cfg)
}

// TargetsResponse is the body of GET /api/targets/{parameterID}.
type TargetsResponse struct {
	ParameterID string                   `json:"parameter_id"`
	Scope       models.Scope             `json:"scope"`
	ScopeKey    string                   `json:"scope_key,omitempty"`
	Active      *models.BehaviorTarget   `json:"active,omitempty"`
	History     []*models.BehaviorTarget `json:"history"`
}

// handleGetTargets returns the version chain for one parameter and scope.
// GET /api/targets/{parameterID}?scope=global&key=
func (s *Service) handleGetTargets(w http.ResponseWriter, r *http.Request) {
	parameterID := chi.URLParam(r, "parameterID")

	scope := models.ScopeGlobal
	if raw := r.URL.Query().Get("scope"); raw != "" {
		parsed, err := models.ParseScope(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		scope = parsed
	}
	scopeKey := r.URL.Query().Get("key")

	history, err := s.targets.History(r.Context(), parameterID, scope, scopeKey)
	if err != nil {
		http.Error(w, "failed to load targets", http.StatusInternalServerError)
		return
	}

	resp := TargetsResponse{
		ParameterID: parameterID,
		Scope:       scope,
		ScopeKey:    scopeKey,
		History:     history,
	}
	for _, t := range history {
		if t.Active() {
			resp.Active = t
			break
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports liveness and store reachability.
// GET /api/health
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.store.Ping(); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseLimitParam parses the "limit" query parameter, falling back to
// defaultLimit when missing or invalid.
func parseLimitParam(r *http.Request, defaultLimit int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			return limit
		}
	}
	return defaultLimit
}
