package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tcbb-predictions/internal/domain"
)

func sets(pairs ...domain.SetScore) []domain.SetScore { return pairs }

func TestScorePrediction(t *testing.T) {
	straight := sets(domain.SetScore{Player1: 6, Player2: 4}, domain.SetScore{Player1: 6, Player2: 3})
	withTiebreak := sets(domain.SetScore{Player1: 6, Player2: 4}, domain.SetScore{Player1: 7, Player2: 6, Tiebreak: "7-5"})

	tests := []struct {
		name       string
		prediction domain.Prediction
		result     Result
		want       int
	}{
		{
			name:       "winner and exact score",
			prediction: domain.Prediction{Winner: domain.SlotPlayer1, SetScores: straight},
			result:     Result{Winner: domain.SlotPlayer1, SetScores: straight},
			want:       20,
		},
		{
			name:       "winner right, second set differs",
			prediction: domain.Prediction{Winner: domain.SlotPlayer1, SetScores: straight},
			result:     Result{Winner: domain.SlotPlayer1, SetScores: withTiebreak},
			want:       5,
		},
		{
			name:       "wrong winner still earns exact score",
			prediction: domain.Prediction{Winner: domain.SlotPlayer2, SetScores: straight},
			result:     Result{Winner: domain.SlotPlayer1, SetScores: straight},
			want:       15,
		},
		{
			name:       "no stated winner never earns winner points",
			prediction: domain.Prediction{SetScores: straight},
			result:     Result{Winner: domain.SlotPlayer1, SetScores: straight},
			want:       15,
		},
		{
			name:       "partial set sequence earns nothing for score",
			prediction: domain.Prediction{Winner: domain.SlotPlayer1, SetScores: straight[:1]},
			result:     Result{Winner: domain.SlotPlayer1, SetScores: straight},
			want:       5,
		},
		{
			name:       "everything wrong",
			prediction: domain.Prediction{Winner: domain.SlotPlayer2, SetScores: withTiebreak},
			result:     Result{Winner: domain.SlotPlayer1, SetScores: straight},
			want:       0,
		},
		{
			name:       "empty prediction against result",
			prediction: domain.Prediction{},
			result:     Result{Winner: domain.SlotPlayer2, SetScores: straight},
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScorePrediction(tt.prediction, tt.result)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, []int{0, 5, 15, 20}, got)
		})
	}
}

func TestScorePrediction_ScoreComponentTracksSetsEqual(t *testing.T) {
	candidates := [][]domain.SetScore{
		nil,
		sets(domain.SetScore{Player1: 6, Player2: 0}),
		sets(domain.SetScore{Player1: 6, Player2: 0}, domain.SetScore{Player1: 6, Player2: 0}),
		sets(domain.SetScore{Player1: 7, Player2: 6, Tiebreak: "7-3"}),
		sets(domain.SetScore{Player1: 7, Player2: 6, Tiebreak: "7-5"}),
		sets(domain.SetScore{Player1: 7, Player2: 6}),
	}
	for _, predicted := range candidates {
		for _, actual := range candidates {
			got := ScorePrediction(domain.Prediction{SetScores: predicted}, Result{Winner: domain.SlotPlayer1, SetScores: actual})
			if SetsEqual(predicted, actual) {
				assert.Equal(t, ExactScorePoints, got)
			} else {
				assert.Equal(t, 0, got)
			}
		}
	}
}

func TestSetsEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b []domain.SetScore
		want bool
	}{
		{"both empty", nil, []domain.SetScore{}, true},
		{"length differs", sets(domain.SetScore{Player1: 6, Player2: 1}), nil, false},
		{"games differ", sets(domain.SetScore{Player1: 6, Player2: 1}), sets(domain.SetScore{Player1: 6, Player2: 2}), false},
		{"swapped games", sets(domain.SetScore{Player1: 6, Player2: 1}), sets(domain.SetScore{Player1: 1, Player2: 6}), false},
		{"tiebreak on one side only", sets(domain.SetScore{Player1: 7, Player2: 6, Tiebreak: "7-4"}), sets(domain.SetScore{Player1: 7, Player2: 6}), false},
		{"tiebreak labels differ", sets(domain.SetScore{Player1: 7, Player2: 6, Tiebreak: "7-4"}), sets(domain.SetScore{Player1: 7, Player2: 6, Tiebreak: "8-6"}), false},
		{"tiebreak labels equal", sets(domain.SetScore{Player1: 7, Player2: 6, Tiebreak: "7-4"}), sets(domain.SetScore{Player1: 7, Player2: 6, Tiebreak: "7-4"}), true},
		{"blank tiebreak is absent", sets(domain.SetScore{Player1: 6, Player2: 4, Tiebreak: "  "}), sets(domain.SetScore{Player1: 6, Player2: 4}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SetsEqual(tt.a, tt.b))
			assert.Equal(t, tt.want, SetsEqual(tt.b, tt.a), "comparator must be symmetric")
			assert.True(t, SetsEqual(tt.a, tt.a), "comparator must be reflexive")
		})
	}
}

func TestScoreTournamentBet(t *testing.T) {
	tests := []struct {
		name      string
		betType   domain.BetType
		predicted string
		want      int
	}{
		{"champion pick right", domain.BetChampion, "alice", ChampionPoints},
		{"champion pick is runner-up", domain.BetChampion, "bob", 0},
		{"runner-up pick right", domain.BetRunnerUp, "bob", RunnerUpPoints},
		{"runner-up pick is champion", domain.BetRunnerUp, "alice", 0},
		{"other player", domain.BetChampion, "carol", 0},
		{"semifinalist has no trigger", domain.BetSemifinalist, "alice", 0},
		{"quarterfinalist has no trigger", domain.BetQuarterfinalist, "bob", 0},
		{"missing pick", domain.BetChampion, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreTournamentBet(tt.betType, tt.predicted, "alice", "bob"))
		})
	}
}

func TestBetReward(t *testing.T) {
	assert.Equal(t, 25, BetReward(domain.BetChampion))
	assert.Equal(t, 15, BetReward(domain.BetRunnerUp))
	assert.Equal(t, 10, BetReward(domain.BetSemifinalist))
	assert.Equal(t, 5, BetReward(domain.BetQuarterfinalist))
	assert.Equal(t, 0, BetReward(domain.BetType("BOGUS")))
}

func TestUserTotal(t *testing.T) {
	predictions := []domain.Prediction{{PointsEarned: 20}, {PointsEarned: 5}, {PointsEarned: 0}}
	bets := []domain.TournamentBet{
		{Type: domain.BetChampion, Category: domain.CategoryA, PointsEarned: 25},
		// stale value on a category whose final is not finished
		{Type: domain.BetRunnerUp, Category: domain.CategoryB, PointsEarned: 15},
		{Type: domain.BetSemifinalist, Category: domain.CategoryB, PointsEarned: 10},
	}
	finals := domain.FinalSet{domain.CategoryA: true}

	got := UserTotal(predictions, bets, finals)

	assert.Equal(t, 25, got.PredictionPoints)
	assert.Equal(t, 35, got.TournamentPoints)
	assert.Equal(t, 60, got.Total())
	assert.Equal(t, got, UserTotal(predictions, bets, finals))
}

func TestBetEligible(t *testing.T) {
	finals := domain.FinalSet{domain.CategoryATP: true}

	assert.True(t, BetEligible(domain.TournamentBet{Type: domain.BetChampion, Category: domain.CategoryATP}, finals))
	assert.False(t, BetEligible(domain.TournamentBet{Type: domain.BetChampion, Category: domain.CategoryC}, finals))
	assert.True(t, BetEligible(domain.TournamentBet{Type: domain.BetQuarterfinalist, Category: domain.CategoryC}, finals))
	assert.Equal(t, 0, BetContribution(domain.TournamentBet{Type: domain.BetRunnerUp, Category: domain.CategoryC, PointsEarned: 15}, finals))
}
