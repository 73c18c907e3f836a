// Package scoring holds the point rules of the prediction game. Everything
// here is pure: no I/O, no clocks, no storage.
package scoring

import "github.com/tcbb-predictions/internal/domain"

// Point values. They are fixed for the whole tournament.
const (
	WinnerPoints          = 5
	ExactScorePoints      = 15
	ChampionPoints        = 25
	RunnerUpPoints        = 15
	SemifinalistPoints    = 10
	QuarterfinalistPoints = 5
)

// Result is a resolved match outcome: which side won and the set sequence.
type Result struct {
	Winner    domain.WinnerSlot
	SetScores []domain.SetScore
}

// ResultOf extracts the scoring-relevant part of a match.
func ResultOf(m *domain.Match) Result {
	return Result{Winner: m.WinnerSlot(), SetScores: m.SetScores}
}

// ScorePrediction awards WinnerPoints for the right side and ExactScorePoints
// when the whole set sequence matches. The two components are independent.
func ScorePrediction(p domain.Prediction, r Result) int {
	points := 0
	if WinnerCorrect(p.Winner, r.Winner) {
		points += WinnerPoints
	}
	if SetsEqual(p.SetScores, r.SetScores) {
		points += ExactScorePoints
	}
	return points
}

// WinnerCorrect reports whether a stated pick names the actual winner.
func WinnerCorrect(predicted, actual domain.WinnerSlot) bool {
	return predicted.Valid() && predicted == actual
}

// SetsEqual reports whether two set sequences are identical, tiebreak labels included.
func SetsEqual(a, b []domain.SetScore) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Player1 != b[i].Player1 || a[i].Player2 != b[i].Player2 {
			return false
		}
		if !tiebreakEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func tiebreakEqual(a, b domain.SetScore) bool {
	switch {
	case !a.HasTiebreak() && !b.HasTiebreak():
		return true
	case a.HasTiebreak() && b.HasTiebreak():
		return a.Tiebreak == b.Tiebreak
	}
	return false
}

// BetReward returns the table value for a bet type.
func BetReward(t domain.BetType) int {
	switch t {
	case domain.BetChampion:
		return ChampionPoints
	case domain.BetRunnerUp:
		return RunnerUpPoints
	case domain.BetSemifinalist:
		return SemifinalistPoints
	case domain.BetQuarterfinalist:
		return QuarterfinalistPoints
	}
	return 0
}

// ScoreTournamentBet scores a CHAMPION or RUNNER_UP pick against a finished
// final. SEMIFINALIST and QUARTERFINALIST have table values but no trigger,
// so they always score 0 here.
func ScoreTournamentBet(t domain.BetType, predictedPlayerID, championID, runnerUpID string) int {
	if predictedPlayerID == "" {
		return 0
	}
	switch {
	case t == domain.BetChampion && predictedPlayerID == championID:
		return ChampionPoints
	case t == domain.BetRunnerUp && predictedPlayerID == runnerUpID:
		return RunnerUpPoints
	}
	return 0
}
