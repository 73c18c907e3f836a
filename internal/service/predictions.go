package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/metrics"
)

// PredictionService accepts user predictions and tournament bets
type PredictionService struct {
	repo     domain.Repository
	agg      *Aggregator
	notifier *Notifier
	metrics  *metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewPredictionService creates a new prediction service
func NewPredictionService(
	repo domain.Repository,
	agg *Aggregator,
	notifier *Notifier,
	rec *metrics.Recorder,
	logger *slog.Logger,
) *PredictionService {
	return &PredictionService{
		repo:     repo,
		agg:      agg,
		notifier: notifier,
		metrics:  rec,
		logger:   logger,
		now:      time.Now,
	}
}

// UpsertPrediction stores the user's pick for a scheduled match. The row
// starts unscored; it earns points when the result is recorded.
func (s *PredictionService) UpsertPrediction(ctx context.Context, userID, matchID string, sub domain.PredictionSubmission) (*domain.Prediction, error) {
	start := time.Now()
	if err := validatePrediction(sub); err != nil {
		s.observe("upsert_prediction", start, err)
		return nil, err
	}

	var (
		prediction *domain.Prediction
		match      *domain.Match
		totals     map[string]int
	)
	err := s.repo.InTx(ctx, func(tx domain.Repository) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		m, err := tx.GetMatch(ctx, matchID)
		if err != nil {
			return fmt.Errorf("getting match: %w", err)
		}
		if m.Status != domain.MatchScheduled {
			return fmt.Errorf("match %s is %s: %w", m.ID, m.Status, domain.ErrMatchClosed)
		}
		match = m

		now := s.now()
		p := &domain.Prediction{
			UserID:    userID,
			MatchID:   matchID,
			Winner:    sub.Winner,
			SetScores: slices.Clone(sub.SetScores),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.UpsertPrediction(ctx, p); err != nil {
			return fmt.Errorf("upserting prediction: %w", err)
		}
		prediction = p

		totals, err = s.agg.recompute(ctx, tx, []string{userID})
		return err
	})
	s.observe("upsert_prediction", start, err)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("prediction stored", "user_id", userID, "match_id", matchID)
	s.notifier.afterCommit(ctx, change{event: domain.EventPredictionUpserted, match: match, totals: totals})
	return prediction, nil
}

func validatePrediction(sub domain.PredictionSubmission) error {
	if sub.Winner != domain.SlotNone && !sub.Winner.Valid() {
		return domain.InvalidKind(domain.ErrInvalidWinnerSlot, "winner", "must be player1 or player2")
	}
	if sub.Winner == domain.SlotNone && len(sub.SetScores) == 0 {
		return domain.Invalid("", "a winner or set scores are required")
	}
	return domain.ValidateSetScores("set_scores", sub.SetScores)
}

// UpsertTournamentBet stores the user's champion or runner-up style pick
// for a category. Betting on a category closes once its final is finished.
func (s *PredictionService) UpsertTournamentBet(ctx context.Context, userID string, sub domain.BetSubmission) (*domain.TournamentBet, error) {
	start := time.Now()
	betType, category, name, err := validateBet(sub)
	if err != nil {
		s.observe("upsert_bet", start, err)
		return nil, err
	}

	var (
		bet    *domain.TournamentBet
		totals map[string]int
	)
	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		finals, err := tx.FinishedFinals(ctx)
		if err != nil {
			return fmt.Errorf("loading finished finals: %w", err)
		}
		if finals[category] {
			return fmt.Errorf("category %s: %w", category, domain.ErrBettingClosed)
		}

		now := s.now()
		player, err := resolvePlayer(ctx, tx, name, now)
		if err != nil {
			return err
		}

		b := &domain.TournamentBet{
			UserID:    userID,
			Type:      betType,
			Category:  category,
			PlayerID:  player.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.UpsertBet(ctx, b); err != nil {
			return fmt.Errorf("upserting bet: %w", err)
		}
		b.PlayerName = player.Name
		bet = b

		totals, err = s.agg.recompute(ctx, tx, []string{userID})
		return err
	})
	s.observe("upsert_bet", start, err)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("tournament bet stored", "user_id", userID, "type", betType, "category", category)
	s.notifier.afterCommit(ctx, change{event: domain.EventBetUpserted, category: category, totals: totals})
	return bet, nil
}

func validateBet(sub domain.BetSubmission) (domain.BetType, domain.Category, string, error) {
	betType, err := domain.ParseBetType(string(sub.Type))
	if err != nil {
		return "", "", "", err
	}
	category, err := domain.ParseCategory(string(sub.Category))
	if err != nil {
		return "", "", "", err
	}
	if !category.IsBracket() {
		return "", "", "", domain.InvalidKind(domain.ErrInvalidCategory, "category", fmt.Sprintf("category %s has no final to bet on", category))
	}
	name := strings.TrimSpace(sub.PlayerName)
	if name == "" {
		return "", "", "", domain.Invalid("player_name", "must not be empty")
	}
	return betType, category, name, nil
}

func (s *PredictionService) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveMutation(operation, outcome(err), time.Since(start))
}
