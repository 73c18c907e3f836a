// Package ranking builds leaderboards and per-user statistics from raw
// prediction and bet rows. It performs no I/O; callers load an Input and
// project it on every request.
package ranking

import (
	"cmp"
	"slices"
	"time"

	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/scoring"
)

// Input is a consistent read of everything a projection needs.
type Input struct {
	Users       []domain.User
	Matches     []domain.Match
	Predictions []domain.Prediction
	Bets        []domain.TournamentBet
}

// index groups an Input by user once so several scopes can be projected cheaply.
type index struct {
	matches     map[string]*domain.Match
	predictions map[string][]domain.Prediction
	bets        map[string][]domain.TournamentBet
	finals      domain.FinalSet
}

func newIndex(in Input) *index {
	idx := &index{
		matches:     make(map[string]*domain.Match, len(in.Matches)),
		predictions: make(map[string][]domain.Prediction),
		bets:        make(map[string][]domain.TournamentBet),
		finals:      domain.FinalsFrom(in.Matches),
	}
	for i := range in.Matches {
		idx.matches[in.Matches[i].ID] = &in.Matches[i]
	}
	for _, p := range in.Predictions {
		idx.predictions[p.UserID] = append(idx.predictions[p.UserID], p)
	}
	for _, b := range in.Bets {
		idx.bets[b.UserID] = append(idx.bets[b.UserID], b)
	}
	return idx
}

// scoped returns the user's rows that fall inside scope. Predictions whose
// match no longer exists are dropped.
func (idx *index) scoped(userID string, scope domain.Scope) ([]domain.Prediction, []domain.TournamentBet) {
	var predictions []domain.Prediction
	for _, p := range idx.predictions[userID] {
		m, ok := idx.matches[p.MatchID]
		if ok && scope.Includes(m.Category) {
			predictions = append(predictions, p)
		}
	}
	var bets []domain.TournamentBet
	for _, b := range idx.bets[userID] {
		if scope.Includes(b.Category) {
			bets = append(bets, b)
		}
	}
	return predictions, bets
}

// Build projects the leaderboard for scope. Every user in the input appears,
// users without activity with 0 points.
func Build(scope domain.Scope, in Input, now time.Time) domain.Ranking {
	return newIndex(in).build(scope, in.Users, now)
}

func (idx *index) build(scope domain.Scope, users []domain.User, now time.Time) domain.Ranking {
	entries := make([]domain.RankingEntry, 0, len(users))
	for _, u := range users {
		predictions, bets := idx.scoped(u.ID, scope)
		totals := scoring.UserTotal(predictions, bets, idx.finals)

		stats := idx.predictionStats(predictions)
		stats.PredictionPoints = totals.PredictionPoints
		stats.TournamentPoints = totals.TournamentPoints

		entries = append(entries, domain.RankingEntry{
			UserID:   u.ID,
			Username: u.Name,
			Points:   totals.Total(),
			Stats:    stats,
		})
	}

	slices.SortStableFunc(entries, func(a, b domain.RankingEntry) int {
		return cmp.Compare(b.Points, a.Points)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return domain.Ranking{
		Scope:       scope,
		Entries:     entries,
		Stats:       aggregate(entries),
		GeneratedAt: now,
	}
}

func (idx *index) predictionStats(predictions []domain.Prediction) domain.PredictionStats {
	stats := domain.PredictionStats{TotalPredictions: len(predictions)}
	settled := make([]domain.Prediction, 0, len(predictions))

	for _, p := range predictions {
		if p.PointsEarned > 0 {
			stats.ScoredCount++
		}
		m := idx.matches[p.MatchID]
		if !m.IsFinished() {
			continue
		}
		settled = append(settled, p)
		if scoring.WinnerCorrect(p.Winner, m.WinnerSlot()) {
			stats.CorrectWinners++
		}
		if scoring.SetsEqual(p.SetScores, m.SetScores) {
			stats.ExactScores++
		}
	}

	stats.SettledCount = len(settled)
	stats.CurrentStreak = currentStreak(settled)
	stats.WinnerAccuracy = ratio(stats.CorrectWinners, stats.SettledCount)
	stats.ExactAccuracy = ratio(stats.ExactScores, stats.SettledCount)
	stats.HitRate = ratio(stats.ScoredCount, stats.SettledCount)
	return stats
}

// currentStreak counts consecutive scoring predictions, most recently updated first.
func currentStreak(settled []domain.Prediction) int {
	ordered := slices.Clone(settled)
	slices.SortStableFunc(ordered, func(a, b domain.Prediction) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	streak := 0
	for _, p := range ordered {
		if p.PointsEarned == 0 {
			break
		}
		streak++
	}
	return streak
}

func aggregate(entries []domain.RankingEntry) domain.RankingStats {
	stats := domain.RankingStats{PlayerCount: len(entries)}
	if len(entries) == 0 {
		return stats
	}

	var points int
	var winner, exact, hit float64
	for _, e := range entries {
		points += e.Points
		winner += e.Stats.WinnerAccuracy
		exact += e.Stats.ExactAccuracy
		hit += e.Stats.HitRate
	}
	n := float64(len(entries))
	stats.AveragePoints = float64(points) / n
	stats.AverageWinnerAccuracy = winner / n
	stats.AverageExactAccuracy = exact / n
	stats.AverageHitRate = hit / n

	leader := entries[0]
	stats.Leader = &leader
	return stats
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Find returns the entry of userID in r.
func Find(r domain.Ranking, userID string) (domain.RankingEntry, bool) {
	for _, e := range r.Entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return domain.RankingEntry{}, false
}
