// Package handler exposes the scoring services over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/service"
	"github.com/tcbb-predictions/internal/worker"
)

// StandingsReader serves the cached standings mirror
type StandingsReader interface {
	TopN(ctx context.Context, n int) ([]domain.Standing, error)
	Standing(ctx context.Context, userID string) (*domain.Standing, error)
}

// Reconciler runs a full reconcile pass on demand
type Reconciler interface {
	RunOnce(ctx context.Context) (*worker.Report, error)
}

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler provides HTTP handlers for the predictions API
type Handler struct {
	results     *service.ResultService
	predictions *service.PredictionService
	rankings    *service.RankingService

	standings  StandingsReader
	reconciler Reconciler
	realtime   http.Handler
	metrics    http.Handler
	checks     map[string]ReadinessCheck
	origins    []string

	ranking config.RankingConfig
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	results *service.ResultService,
	predictions *service.PredictionService,
	rankings *service.RankingService,
	cfg config.RankingConfig,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		results:     results,
		predictions: predictions,
		rankings:    rankings,
		checks:      make(map[string]ReadinessCheck),
		origins:     []string{"*"},
		ranking:     cfg,
		logger:      logger,
	}
}

// SetStandings enables GET /api/v1/standings/top and /api/v1/standings/{userID}
func (h *Handler) SetStandings(s StandingsReader) { h.standings = s }

// SetReconciler enables POST /api/v1/admin/reconcile
func (h *Handler) SetReconciler(r Reconciler) { h.reconciler = r }

// SetRealtime mounts the websocket endpoint
func (h *Handler) SetRealtime(ws http.Handler) { h.realtime = ws }

// SetMetrics mounts the metrics endpoint
func (h *Handler) SetMetrics(m http.Handler) { h.metrics = m }

// SetAllowedOrigins restricts cross-origin callers
func (h *Handler) SetAllowedOrigins(origins []string) {
	if len(origins) > 0 {
		h.origins = origins
	}
}

// AddReadinessCheck registers a dependency consulted by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
	if h.realtime != nil {
		r.Handle("/ws", h.realtime)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Post("/matches", h.CreateMatch)
			r.Route("/matches/{matchID}", func(r chi.Router) {
				r.Put("/result", h.RecordMatchResult)
				r.Patch("/players", h.EditMatchPlayers)
				r.Delete("/", h.DeleteMatch)
			})
			r.Post("/reconcile", h.Reconcile)
		})

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Put("/predictions/{matchID}", h.UpsertPrediction)
			r.Put("/bets", h.UpsertTournamentBet)
			r.Get("/stats", h.GetUserStats)
			r.Get("/history", h.GetPredictionHistory)
		})

		r.Get("/rankings/{scope}", h.GetRanking)
		r.Get("/standings/top", h.GetStandings)
		r.Get("/standings/{userID}", h.GetUserStanding)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{Success: false, Error: err.Error()})
}

// writeServiceError maps a service error onto a status. Storage failures
// are logged and hidden behind a generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, action string, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	case domain.IsValidationError(err), errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error("request failed", "action", action, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidRequest
	}
	return nil
}

// limit reads ?limit=, falling back to def and capping at the configured max.
func (h *Handler) limit(r *http.Request, def int) int {
	n := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			n = l
		}
	}
	if h.ranking.MaxTopN > 0 && n > h.ranking.MaxTopN {
		n = h.ranking.MaxTopN
	}
	return n
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck runs every registered readiness check
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.logger.Warn("readiness check failed", "failed", failed)
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    failed,
			Error:   "not ready",
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
