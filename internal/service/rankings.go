package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/ranking"
)

// RankingService serves leaderboards, user statistics and prediction
// history. Nothing is cached: every call projects a fresh read.
type RankingService struct {
	repo   domain.Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewRankingService creates a new ranking service
func NewRankingService(repo domain.Repository, logger *slog.Logger) *RankingService {
	return &RankingService{repo: repo, logger: logger, now: time.Now}
}

// GetRanking returns the leaderboard for scope
func (s *RankingService) GetRanking(ctx context.Context, scope domain.Scope) (*domain.Ranking, error) {
	if _, ok := scope.Category(); scope != domain.ScopeOverall && !ok {
		return nil, domain.InvalidKind(domain.ErrInvalidCategory, "scope", fmt.Sprintf("unknown scope %q", scope))
	}

	var in ranking.Input
	err := s.repo.Snapshot(ctx, func(view domain.Repository) error {
		var err error
		in, err = loadInput(ctx, view)
		return err
	})
	if err != nil {
		return nil, err
	}

	r := ranking.Build(scope, in, s.now())
	return &r, nil
}

// GetUserStats returns the user's overall and per-category standing and
// their tournament bets.
func (s *RankingService) GetUserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	user, in, err := s.loadForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := ranking.UserStats(*user, in, s.now())
	return &stats, nil
}

// GetPredictionHistory returns the user's predictions joined to their
// matches, newest first.
func (s *RankingService) GetPredictionHistory(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	_, in, err := s.loadForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ranking.History(userID, in), nil
}

func (s *RankingService) loadForUser(ctx context.Context, userID string) (*domain.User, ranking.Input, error) {
	var (
		user *domain.User
		in   ranking.Input
	)
	err := s.repo.Snapshot(ctx, func(view domain.Repository) error {
		var err error
		user, err = view.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("getting user: %w", err)
		}
		in, err = loadInput(ctx, view)
		return err
	})
	return user, in, err
}

// loadInput reads the four row sets concurrently from one view.
func loadInput(ctx context.Context, view domain.Repository) (ranking.Input, error) {
	var in ranking.Input
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		users, err := view.ListUsers(gctx, domain.RoleParticipant)
		if err != nil {
			return fmt.Errorf("listing users: %w", err)
		}
		in.Users = users
		return nil
	})
	g.Go(func() error {
		matches, err := view.ListMatches(gctx)
		if err != nil {
			return fmt.Errorf("listing matches: %w", err)
		}
		in.Matches = matches
		return nil
	})
	g.Go(func() error {
		predictions, err := view.ListPredictions(gctx)
		if err != nil {
			return fmt.Errorf("listing predictions: %w", err)
		}
		in.Predictions = predictions
		return nil
	})
	g.Go(func() error {
		bets, err := view.ListBets(gctx)
		if err != nil {
			return fmt.Errorf("listing bets: %w", err)
		}
		in.Bets = bets
		return nil
	})

	if err := g.Wait(); err != nil {
		return ranking.Input{}, err
	}
	return in, nil
}
