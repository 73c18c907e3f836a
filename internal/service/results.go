package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/metrics"
	"github.com/tcbb-predictions/internal/scoring"
)

// ResultService records, edits and deletes match results and keeps every
// cached point value consistent with them.
type ResultService struct {
	repo     domain.Repository
	agg      *Aggregator
	notifier *Notifier
	metrics  *metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewResultService creates a new result service
func NewResultService(
	repo domain.Repository,
	agg *Aggregator,
	notifier *Notifier,
	rec *metrics.Recorder,
	logger *slog.Logger,
) *ResultService {
	return &ResultService{
		repo:     repo,
		agg:      agg,
		notifier: notifier,
		metrics:  rec,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordMatchResult finishes a match, or replaces the result of a finished
// one, and rescores everything that depends on it in one transaction.
func (s *ResultService) RecordMatchResult(ctx context.Context, matchID string, req domain.RecordResultRequest) (*domain.Match, error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		s.observe("record_result", start, err)
		return nil, err
	}

	var (
		match  *domain.Match
		totals map[string]int
	)
	err := s.repo.InTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("getting match: %w", err)
		}
		if m.Status == domain.MatchCancelled {
			return domain.Invalid("status", "a cancelled match cannot take a result")
		}
		winnerID := m.PlayerID(req.Winner)
		if winnerID == "" {
			return domain.InvalidKind(domain.ErrInvalidWinnerSlot, "winner", "match has no player in that slot")
		}

		if !sameResult(m, winnerID, req) {
			now := s.now()
			if m.Status != domain.MatchFinished || m.FinishedAt == nil {
				m.FinishedAt = &now
			}
			m.Status = domain.MatchFinished
			m.WinnerID = winnerID
			m.SetScores = slices.Clone(req.SetScores)
			m.HadTiebreak = domain.AnyTiebreak(req.SetScores)
			m.DurationMinutes = req.DurationMinutes
			m.UpdatedAt = now
			if err := tx.SaveMatchResult(ctx, m); err != nil {
				return fmt.Errorf("saving match result: %w", err)
			}
		}

		touched := newUserSet()
		if err := s.rescorePredictions(ctx, tx, m, touched); err != nil {
			return err
		}
		if m.IsFinal() {
			if err := s.rescoreBets(ctx, tx, m.Category, m.WinnerID, m.LoserID(), touched); err != nil {
				return err
			}
		}

		totals, err = s.agg.recompute(ctx, tx, touched.ids)
		if err != nil {
			return err
		}

		match, err = tx.GetMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("reloading match: %w", err)
		}
		return nil
	})
	s.observe("record_result", start, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("match result recorded",
		"match_id", match.ID,
		"category", match.Category,
		"round", match.Round,
		"users", len(totals),
	)
	s.notifier.afterCommit(ctx, change{event: domain.EventMatchResultRecorded, match: match, totals: totals})
	return match, nil
}

// sameResult reports whether m already carries the requested result, in
// which case timestamps are left alone.
func sameResult(m *domain.Match, winnerID string, req domain.RecordResultRequest) bool {
	if m.Status != domain.MatchFinished || m.WinnerID != winnerID {
		return false
	}
	if !slices.Equal(m.SetScores, req.SetScores) {
		return false
	}
	switch {
	case m.DurationMinutes == nil && req.DurationMinutes == nil:
		return true
	case m.DurationMinutes == nil || req.DurationMinutes == nil:
		return false
	}
	return *m.DurationMinutes == *req.DurationMinutes
}

func (s *ResultService) rescorePredictions(ctx context.Context, tx domain.Repository, m *domain.Match, touched *userSet) error {
	predictions, err := tx.ListPredictionsByMatch(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("listing predictions: %w", err)
	}

	result := scoring.ResultOf(m)
	changed := 0
	for _, p := range predictions {
		points := scoring.ScorePrediction(p, result)
		if points != p.PointsEarned {
			if err := tx.SetPredictionPoints(ctx, p.ID, points); err != nil {
				return fmt.Errorf("storing prediction points: %w", err)
			}
			changed++
		}
		touched.add(p.UserID)
	}
	s.metrics.AddRescored("prediction", changed)
	return nil
}

// rescoreBets settles the category's champion and runner-up bets. Empty
// championID and runnerUpID zero them.
func (s *ResultService) rescoreBets(ctx context.Context, tx domain.Repository, category domain.Category, championID, runnerUpID string, touched *userSet) error {
	bets, err := tx.ListBetsByCategory(ctx, category, domain.BetChampion, domain.BetRunnerUp)
	if err != nil {
		return fmt.Errorf("listing tournament bets: %w", err)
	}

	changed := 0
	for _, b := range bets {
		points := scoring.ScoreTournamentBet(b.Type, b.PlayerID, championID, runnerUpID)
		if points != b.PointsEarned {
			if err := tx.SetBetPoints(ctx, b.ID, points); err != nil {
				return fmt.Errorf("storing bet points: %w", err)
			}
			changed++
		}
		touched.add(b.UserID)
	}
	s.metrics.AddRescored("bet", changed)
	return nil
}

// DeleteMatch removes a match with its predictions and lowers the owners'
// totals accordingly. Deleting a finished final also unsettles the
// category's champion and runner-up bets.
func (s *ResultService) DeleteMatch(ctx context.Context, matchID string) error {
	start := time.Now()
	var (
		match  *domain.Match
		totals map[string]int
	)
	err := s.repo.InTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("getting match: %w", err)
		}
		match = m

		predictions, err := tx.ListPredictionsByMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("listing predictions: %w", err)
		}
		touched := newUserSet()
		for _, p := range predictions {
			touched.add(p.UserID)
		}

		if err := tx.DeletePredictionsByMatch(ctx, matchID); err != nil {
			return fmt.Errorf("deleting predictions: %w", err)
		}
		if err := tx.DeleteMatch(ctx, matchID); err != nil {
			return fmt.Errorf("deleting match: %w", err)
		}

		if m.IsFinal() && m.IsFinished() {
			if err := s.rescoreBets(ctx, tx, m.Category, "", "", touched); err != nil {
				return err
			}
		}

		totals, err = s.agg.recompute(ctx, tx, touched.ids)
		return err
	})
	s.observe("delete_match", start, err)
	if err != nil {
		return err
	}

	s.logger.Info("match deleted", "match_id", matchID, "category", match.Category, "users", len(totals))
	s.notifier.afterCommit(ctx, change{event: domain.EventMatchDeleted, match: match, totals: totals})
	return nil
}

// EditMatchPlayers renames the players of a match. Point values are not
// touched: predictions reference sides, not names.
func (s *ResultService) EditMatchPlayers(ctx context.Context, matchID string, req domain.EditPlayersRequest) (*domain.Match, error) {
	start := time.Now()
	names, err := playerNames(req)
	if err != nil {
		s.observe("edit_players", start, err)
		return nil, err
	}

	var match *domain.Match
	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("getting match: %w", err)
		}

		for _, slot := range []domain.WinnerSlot{domain.SlotPlayer1, domain.SlotPlayer2} {
			name, ok := names[slot]
			if !ok {
				continue
			}
			playerID := m.PlayerID(slot)
			existing, err := tx.FindPlayerByName(ctx, name)
			switch {
			case err == nil && existing.ID == playerID:
				if existing.Name == name {
					continue
				}
			case err == nil:
				return domain.Invalid(string(slot)+"_name", fmt.Sprintf("name %q is already used by another player", name))
			case !errors.Is(err, domain.ErrPlayerNotFound):
				return fmt.Errorf("looking up player name: %w", err)
			}
			if err := tx.RenamePlayer(ctx, playerID, name); err != nil {
				return fmt.Errorf("renaming player: %w", err)
			}
		}

		match, err = tx.GetMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("reloading match: %w", err)
		}
		return nil
	})
	s.observe("edit_players", start, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("match players edited", "match_id", matchID)
	return match, nil
}

func playerNames(req domain.EditPlayersRequest) (map[domain.WinnerSlot]string, error) {
	names := make(map[domain.WinnerSlot]string, 2)
	if req.Player1Name != nil {
		names[domain.SlotPlayer1] = strings.TrimSpace(*req.Player1Name)
	}
	if req.Player2Name != nil {
		names[domain.SlotPlayer2] = strings.TrimSpace(*req.Player2Name)
	}
	if len(names) == 0 {
		return nil, domain.Invalid("", "at least one player name is required")
	}
	for slot, name := range names {
		if name == "" {
			return nil, domain.Invalid(string(slot)+"_name", "must not be empty")
		}
	}
	if len(names) == 2 && strings.EqualFold(names[domain.SlotPlayer1], names[domain.SlotPlayer2]) {
		return nil, domain.Invalid("player2_name", "both players have the same name")
	}
	return names, nil
}

// CreateMatch schedules a new match. Unknown player names create players.
func (s *ResultService) CreateMatch(ctx context.Context, req domain.CreateMatchRequest) (*domain.Match, error) {
	start := time.Now()
	category, err := domain.ParseCategory(string(req.Category))
	if err != nil {
		s.observe("create_match", start, err)
		return nil, err
	}
	round, err := domain.ParseRound(category, string(req.Round))
	if err != nil {
		s.observe("create_match", start, err)
		return nil, err
	}
	name1, name2 := strings.TrimSpace(req.Player1Name), strings.TrimSpace(req.Player2Name)
	switch {
	case name1 == "":
		err = domain.Invalid("player1_name", "must not be empty")
	case name2 == "":
		err = domain.Invalid("player2_name", "must not be empty")
	case strings.EqualFold(name1, name2):
		err = domain.Invalid("player2_name", "a player cannot face themselves")
	}
	if err != nil {
		s.observe("create_match", start, err)
		return nil, err
	}

	var match *domain.Match
	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		if round == domain.RoundFinal {
			matches, err := tx.ListMatches(ctx)
			if err != nil {
				return fmt.Errorf("listing matches: %w", err)
			}
			for _, m := range matches {
				if m.Category == category && m.IsFinal() {
					return domain.InvalidKind(domain.ErrInvalidRound, "round", fmt.Sprintf("category %s already has a final", category))
				}
			}
		}

		now := s.now()
		p1, err := resolvePlayer(ctx, tx, name1, now)
		if err != nil {
			return err
		}
		p2, err := resolvePlayer(ctx, tx, name2, now)
		if err != nil {
			return err
		}

		m := &domain.Match{
			Player1ID:   p1.ID,
			Player2ID:   p2.ID,
			Category:    category,
			Round:       round,
			Status:      domain.MatchScheduled,
			ScheduledAt: req.ScheduledAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateMatch(ctx, m); err != nil {
			return fmt.Errorf("creating match: %w", err)
		}

		match, err = tx.GetMatch(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("reloading match: %w", err)
		}
		return nil
	})
	s.observe("create_match", start, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("match created", "match_id", match.ID, "category", match.Category, "round", match.Round)
	return match, nil
}

// resolvePlayer finds a player by name, creating it when unknown.
func resolvePlayer(ctx context.Context, tx domain.Repository, name string, now time.Time) (*domain.Player, error) {
	p, err := tx.FindPlayerByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrPlayerNotFound) {
		return nil, fmt.Errorf("looking up player %q: %w", name, err)
	}
	p = &domain.Player{Name: name, CreatedAt: now}
	if err := tx.CreatePlayer(ctx, p); err != nil {
		return nil, fmt.Errorf("creating player %q: %w", name, err)
	}
	return p, nil
}

func (s *ResultService) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveMutation(operation, outcome(err), time.Since(start))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case domain.IsValidationError(err), domain.IsNotFoundError(err), domain.IsConflictError(err):
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}
