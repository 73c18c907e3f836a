package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tcbb-predictions/internal/domain"
)

// CreateMatch schedules a new match
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateMatchRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	match, err := h.results.CreateMatch(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "create match", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: match})
}

// RecordMatchResult stores or edits a match result and rescores it
func (h *Handler) RecordMatchResult(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordResultRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	match, err := h.results.RecordMatchResult(r.Context(), chi.URLParam(r, "matchID"), req)
	if err != nil {
		h.writeServiceError(w, "record match result", err)
		return
	}
	h.writeSuccess(w, match)
}

// EditMatchPlayers renames the players of a match
func (h *Handler) EditMatchPlayers(w http.ResponseWriter, r *http.Request) {
	var req domain.EditPlayersRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	match, err := h.results.EditMatchPlayers(r.Context(), chi.URLParam(r, "matchID"), req)
	if err != nil {
		h.writeServiceError(w, "edit match players", err)
		return
	}
	h.writeSuccess(w, match)
}

// DeleteMatch removes a match with its predictions
func (h *Handler) DeleteMatch(w http.ResponseWriter, r *http.Request) {
	if err := h.results.DeleteMatch(r.Context(), chi.URLParam(r, "matchID")); err != nil {
		h.writeServiceError(w, "delete match", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// Reconcile recomputes every user total
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.reconciler == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrInvalidRequest)
		return
	}
	report, err := h.reconciler.RunOnce(r.Context())
	if err != nil {
		h.writeServiceError(w, "reconcile", err)
		return
	}
	h.writeSuccess(w, report)
}

// UpsertPrediction creates or replaces a user's pick for a match
func (h *Handler) UpsertPrediction(w http.ResponseWriter, r *http.Request) {
	var sub domain.PredictionSubmission
	if err := decode(r, &sub); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := h.predictions.UpsertPrediction(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "matchID"), sub)
	if err != nil {
		h.writeServiceError(w, "upsert prediction", err)
		return
	}
	h.writeSuccess(w, p)
}

// UpsertTournamentBet creates or replaces a user's bracket bet
func (h *Handler) UpsertTournamentBet(w http.ResponseWriter, r *http.Request) {
	var sub domain.BetSubmission
	if err := decode(r, &sub); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	bet, err := h.predictions.UpsertTournamentBet(r.Context(), chi.URLParam(r, "userID"), sub)
	if err != nil {
		h.writeServiceError(w, "upsert tournament bet", err)
		return
	}
	h.writeSuccess(w, bet)
}

// GetRanking returns the live ranking of a scope. ?limit= truncates the
// entries; the aggregates always cover everyone.
func (h *Handler) GetRanking(w http.ResponseWriter, r *http.Request) {
	scope, err := domain.ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	ranking, err := h.rankings.GetRanking(r.Context(), scope)
	if err != nil {
		h.writeServiceError(w, "get ranking", err)
		return
	}
	if r.URL.Query().Has("limit") {
		if n := h.limit(r, len(ranking.Entries)); n < len(ranking.Entries) {
			ranking.Entries = ranking.Entries[:n]
		}
	}
	h.writeSuccess(w, ranking)
}

// GetUserStats returns a user's standing in every scope
func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.rankings.GetUserStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, "get user stats", err)
		return
	}
	h.writeSuccess(w, stats)
}

// GetPredictionHistory returns a user's predictions, newest first
func (h *Handler) GetPredictionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.rankings.GetPredictionHistory(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, "get prediction history", err)
		return
	}
	h.writeSuccess(w, history)
}

// GetStandings returns the top of the cached standings mirror
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	if h.standings == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrInvalidRequest)
		return
	}
	top, err := h.standings.TopN(r.Context(), h.limit(r, h.ranking.DefaultTopN))
	if err != nil {
		h.writeServiceError(w, "get standings", err)
		return
	}
	h.writeSuccess(w, top)
}

// GetUserStanding handles GET /api/v1/standings/{userID}
func (h *Handler) GetUserStanding(w http.ResponseWriter, r *http.Request) {
	if h.standings == nil {
		h.writeError(w, http.StatusNotFound, domain.ErrInvalidRequest)
		return
	}
	standing, err := h.standings.Standing(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, "get user standing", err)
		return
	}
	h.writeSuccess(w, standing)
}
