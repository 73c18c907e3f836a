package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/metrics"
	"github.com/tcbb-predictions/internal/scoring"
)

// Aggregator is the only writer of User.points. It derives the total from
// the user's cached prediction and bet points with scoring.UserTotal.
type Aggregator struct {
	repo    domain.Repository
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewAggregator creates a new aggregation engine
func NewAggregator(repo domain.Repository, rec *metrics.Recorder, logger *slog.Logger) *Aggregator {
	return &Aggregator{repo: repo, metrics: rec, logger: logger}
}

// RecomputeUserTotal recomputes and persists one user's total in its own
// transaction.
func (a *Aggregator) RecomputeUserTotal(ctx context.Context, userID string) (int, error) {
	var total int
	err := a.repo.InTx(ctx, func(tx domain.Repository) error {
		finals, err := tx.FinishedFinals(ctx)
		if err != nil {
			return fmt.Errorf("loading finished finals: %w", err)
		}
		_, total, err = a.recomputeOne(ctx, tx, finals, userID)
		if err != nil {
			return err
		}
		a.metrics.AddRecomputed(1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// recompute runs inside the caller's transaction and stores the total of
// every user in userIDs. The returned map only holds participants, since it
// feeds the standings mirror and events, which mirror the rankings.
func (a *Aggregator) recompute(ctx context.Context, tx domain.Repository, userIDs []string) (map[string]int, error) {
	totals := make(map[string]int, len(userIDs))
	if len(userIDs) == 0 {
		return totals, nil
	}

	finals, err := tx.FinishedFinals(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading finished finals: %w", err)
	}

	for _, userID := range userIDs {
		user, total, err := a.recomputeOne(ctx, tx, finals, userID)
		if err != nil {
			return nil, err
		}
		if user.Role == domain.RoleParticipant {
			totals[userID] = total
		}
	}

	a.metrics.AddRecomputed(len(userIDs))
	return totals, nil
}

// recomputeOne rewrites the stored value only when it differs, so repeating
// a recompute leaves no trace.
func (a *Aggregator) recomputeOne(ctx context.Context, tx domain.Repository, finals domain.FinalSet, userID string) (*domain.User, int, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("getting user %s: %w", userID, err)
	}
	predictions, err := tx.ListPredictionsByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("listing predictions of %s: %w", userID, err)
	}
	bets, err := tx.ListBetsByUser(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("listing bets of %s: %w", userID, err)
	}

	total := scoring.UserTotal(predictions, bets, finals).Total()
	if total != user.Points {
		if err := tx.SetUserPoints(ctx, userID, total); err != nil {
			return nil, 0, fmt.Errorf("storing total of %s: %w", userID, err)
		}
	}
	return user, total, nil
}

// userSet collects distinct user ids in first-seen order.
type userSet struct {
	seen map[string]struct{}
	ids  []string
}

func newUserSet() *userSet {
	return &userSet{seen: make(map[string]struct{})}
}

func (s *userSet) add(id string) {
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}
