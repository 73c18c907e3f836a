package ranking

import (
	"slices"
	"time"

	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/scoring"
)

// UserStats projects every scope and picks out user's rows. The user must be
// part of in.Users for the entries to carry a rank.
func UserStats(user domain.User, in Input, now time.Time) domain.UserStats {
	idx := newIndex(in)
	stats := domain.UserStats{
		User:       user,
		Categories: make(map[domain.Category]domain.RankingEntry, len(domain.Categories)),
	}

	users := in.Users
	if !slices.ContainsFunc(users, func(u domain.User) bool { return u.ID == user.ID }) {
		users = append(slices.Clone(users), user)
	}

	overall := idx.build(domain.ScopeOverall, users, now)
	stats.Overall, _ = Find(overall, user.ID)
	for _, c := range domain.Categories {
		r := idx.build(domain.CategoryScope(c), users, now)
		stats.Categories[c], _ = Find(r, user.ID)
	}

	for _, bet := range idx.bets[user.ID] {
		stats.Bets = append(stats.Bets, domain.BetStatus{
			TournamentBet: bet,
			Decided:       bet.Type.DecidedByFinal() && idx.finals[bet.Category],
			Eligible:      scoring.BetEligible(bet, idx.finals),
		})
	}
	return stats
}

// History joins a user's predictions to their matches, newest first.
func History(userID string, in Input) []domain.HistoryEntry {
	idx := newIndex(in)
	entries := make([]domain.HistoryEntry, 0, len(idx.predictions[userID]))

	for _, p := range idx.predictions[userID] {
		m, ok := idx.matches[p.MatchID]
		if !ok {
			continue
		}
		entry := domain.HistoryEntry{
			PredictionID:    p.ID,
			MatchID:         m.ID,
			Category:        m.Category,
			Round:           m.Round,
			Player1Name:     m.Player1Name,
			Player2Name:     m.Player2Name,
			Status:          m.Status,
			PredictedWinner: p.Winner,
			PredictedSets:   p.SetScores,
			PointsEarned:    p.PointsEarned,
			UpdatedAt:       p.UpdatedAt,
		}
		if m.IsFinished() {
			entry.ActualWinner = m.WinnerSlot()
			entry.ActualSets = m.SetScores
			entry.WinnerCorrect = scoring.WinnerCorrect(p.Winner, entry.ActualWinner)
			entry.ExactScore = scoring.SetsEqual(p.SetScores, m.SetScores)
		}
		entries = append(entries, entry)
	}

	slices.SortStableFunc(entries, func(a, b domain.HistoryEntry) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return entries
}
