package scoring

import "github.com/tcbb-predictions/internal/domain"

// Breakdown splits a user total into its two sources.
type Breakdown struct {
	PredictionPoints int
	TournamentPoints int
}

// Total returns PredictionPoints + TournamentPoints.
func (b Breakdown) Total() int {
	return b.PredictionPoints + b.TournamentPoints
}

// BetEligible reports whether a bet's cached points count towards totals.
// Bets decided by the final only count once that category's final is finished.
func BetEligible(bet domain.TournamentBet, finals domain.FinalSet) bool {
	if !bet.Type.DecidedByFinal() {
		return true
	}
	return finals[bet.Category]
}

// BetContribution is the number of points a bet adds to its owner's total.
func BetContribution(bet domain.TournamentBet, finals domain.FinalSet) int {
	if !BetEligible(bet, finals) {
		return 0
	}
	return bet.PointsEarned
}

// UserTotal is the canonical total formula. Both the stored User.points and
// every ranking are derived from it.
func UserTotal(predictions []domain.Prediction, bets []domain.TournamentBet, finals domain.FinalSet) Breakdown {
	var b Breakdown
	for _, p := range predictions {
		b.PredictionPoints += p.PointsEarned
	}
	for _, bet := range bets {
		b.TournamentPoints += BetContribution(bet, finals)
	}
	return b
}
