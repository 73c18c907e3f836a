package ranking

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcbb-predictions/internal/domain"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return epoch.Add(time.Duration(minutes) * time.Minute) }

func finished(id string, c domain.Category, r domain.Round, winner string, s ...domain.SetScore) domain.Match {
	return domain.Match{
		ID: id, Category: c, Round: r,
		Player1ID: "p1", Player2ID: "p2",
		Player1Name: "Nadal", Player2Name: "Federer",
		Status: domain.MatchFinished, WinnerID: winner, SetScores: s,
	}
}

func scheduled(id string, c domain.Category, r domain.Round) domain.Match {
	return domain.Match{ID: id, Category: c, Round: r, Player1ID: "p1", Player2ID: "p2", Status: domain.MatchScheduled}
}

type row struct {
	Rank   int
	UserID string
	Points int
}

func rows(r domain.Ranking) []row {
	out := make([]row, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = row{e.Rank, e.UserID, e.Points}
	}
	return out
}

func fixture() Input {
	s64 := domain.SetScore{Player1: 6, Player2: 4}
	s63 := domain.SetScore{Player1: 6, Player2: 3}
	return Input{
		Users: []domain.User{
			{ID: "ana", Name: "Ana"},
			{ID: "ben", Name: "Ben"},
			{ID: "cid", Name: "Cid"},
		},
		Matches: []domain.Match{
			finished("a-qf", domain.CategoryA, domain.RoundQuarterfinals, "p1", s64, s63),
			finished("a-final", domain.CategoryA, domain.RoundFinal, "p2", s63, s64),
			finished("b-r1", domain.CategoryB, domain.RoundFirst, "p1", s64, s64),
			scheduled("c-final", domain.CategoryC, domain.RoundFinal),
		},
		Predictions: []domain.Prediction{
			{ID: "1", UserID: "ana", MatchID: "a-qf", Winner: domain.SlotPlayer1, SetScores: []domain.SetScore{s64, s63}, PointsEarned: 20, UpdatedAt: at(1)},
			{ID: "2", UserID: "ana", MatchID: "a-final", Winner: domain.SlotPlayer1, PointsEarned: 0, UpdatedAt: at(2)},
			{ID: "3", UserID: "ben", MatchID: "a-qf", Winner: domain.SlotPlayer1, PointsEarned: 5, UpdatedAt: at(1)},
			{ID: "4", UserID: "ben", MatchID: "a-final", Winner: domain.SlotPlayer2, PointsEarned: 5, UpdatedAt: at(2)},
			{ID: "5", UserID: "ben", MatchID: "b-r1", Winner: domain.SlotPlayer1, SetScores: []domain.SetScore{s64, s64}, PointsEarned: 20, UpdatedAt: at(3)},
			{ID: "6", UserID: "cid", MatchID: "c-final", Winner: domain.SlotPlayer2, UpdatedAt: at(4)},
		},
		Bets: []domain.TournamentBet{
			{ID: "b1", UserID: "ana", Type: domain.BetChampion, Category: domain.CategoryA, PlayerID: "p2", PointsEarned: 25},
			// C final is not finished: stale points must not count
			{ID: "b2", UserID: "cid", Type: domain.BetChampion, Category: domain.CategoryC, PlayerID: "p2", PointsEarned: 25},
		},
	}
}

func TestBuild_Overall(t *testing.T) {
	r := Build(domain.ScopeOverall, fixture(), epoch)

	want := []row{{1, "ana", 45}, {2, "ben", 30}, {3, "cid", 0}}
	if diff := cmp.Diff(want, rows(r)); diff != "" {
		t.Errorf("overall ranking mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, domain.ScopeOverall, r.Scope)
	assert.Equal(t, epoch, r.GeneratedAt)
	assert.Equal(t, 3, r.Stats.PlayerCount)
	assert.InDelta(t, 25.0, r.Stats.AveragePoints, 1e-9)
	require.NotNil(t, r.Stats.Leader)
	assert.Equal(t, "ana", r.Stats.Leader.UserID)

	ana := r.Entries[0].Stats
	assert.Equal(t, 2, ana.TotalPredictions)
	assert.Equal(t, 2, ana.SettledCount)
	assert.Equal(t, 1, ana.ScoredCount)
	assert.Equal(t, 1, ana.CorrectWinners)
	assert.Equal(t, 1, ana.ExactScores)
	assert.Equal(t, 0, ana.CurrentStreak, "most recent prediction scored 0")
	assert.Equal(t, 20, ana.PredictionPoints)
	assert.Equal(t, 25, ana.TournamentPoints)
	assert.InDelta(t, 0.5, ana.WinnerAccuracy, 1e-9)

	ben := r.Entries[1].Stats
	assert.Equal(t, 3, ben.CurrentStreak)
	assert.Equal(t, 3, ben.CorrectWinners)
	assert.Equal(t, 1, ben.ExactScores)
	assert.InDelta(t, 1.0, ben.HitRate, 1e-9)

	cid := r.Entries[2].Stats
	assert.Equal(t, 1, cid.TotalPredictions)
	assert.Equal(t, 0, cid.SettledCount, "scheduled match is not settled")
	assert.Equal(t, 0, cid.TournamentPoints)
}

func TestBuild_CategoryIncludesInactiveUsers(t *testing.T) {
	r := Build(domain.CategoryScope(domain.CategoryB), fixture(), epoch)

	want := []row{{1, "ben", 20}, {2, "ana", 0}, {3, "cid", 0}}
	if diff := cmp.Diff(want, rows(r)); diff != "" {
		t.Errorf("category B ranking mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, r.Entries[0].Rank)
	assert.Equal(t, 0, r.Entries[1].Stats.TotalPredictions)
}

func TestBuild_CategoryTotalsSumToOverall(t *testing.T) {
	in := fixture()
	overall := Build(domain.ScopeOverall, in, epoch)

	for _, u := range in.Users {
		sum := 0
		for _, c := range domain.Categories {
			e, ok := Find(Build(domain.CategoryScope(c), in, epoch), u.ID)
			require.True(t, ok)
			sum += e.Points
		}
		e, ok := Find(overall, u.ID)
		require.True(t, ok)
		assert.Equal(t, e.Points, sum, "user %s", u.ID)
	}
}

func TestBuild_TiesKeepInputOrder(t *testing.T) {
	in := Input{Users: []domain.User{{ID: "z"}, {ID: "y"}, {ID: "x"}}}

	r := Build(domain.ScopeOverall, in, epoch)

	want := []row{{1, "z", 0}, {2, "y", 0}, {3, "x", 0}}
	if diff := cmp.Diff(want, rows(r)); diff != "" {
		t.Errorf("tie order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Empty(t *testing.T) {
	r := Build(domain.ScopeOverall, Input{}, epoch)

	assert.Empty(t, r.Entries)
	assert.Equal(t, 0, r.Stats.PlayerCount)
	assert.Nil(t, r.Stats.Leader)
}

func TestCurrentStreak(t *testing.T) {
	tests := []struct {
		name string
		in   []domain.Prediction
		want int
	}{
		{"none", nil, 0},
		{"all scoring", []domain.Prediction{{PointsEarned: 5, UpdatedAt: at(1)}, {PointsEarned: 20, UpdatedAt: at(2)}}, 2},
		{
			name: "stops at first miss from most recent",
			in: []domain.Prediction{
				{PointsEarned: 5, UpdatedAt: at(1)},
				{PointsEarned: 0, UpdatedAt: at(2)},
				{PointsEarned: 15, UpdatedAt: at(3)},
				{PointsEarned: 20, UpdatedAt: at(4)},
			},
			want: 2,
		},
		{"latest missed", []domain.Prediction{{PointsEarned: 20, UpdatedAt: at(1)}, {PointsEarned: 0, UpdatedAt: at(2)}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, currentStreak(tt.in))
		})
	}
}
