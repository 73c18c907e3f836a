package domain

import "context"

// Repository is the persistence contract consumed by the scoring core.
// Implementations must make InTx atomic: every write issued through the
// Repository passed to fn lands, or none does. Snapshot gives fn a read view
// that never observes a transaction half-applied.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Repository) error) error
	Snapshot(ctx context.Context, fn func(view Repository) error) error

	// Players
	GetPlayer(ctx context.Context, playerID string) (*Player, error)
	FindPlayerByName(ctx context.Context, name string) (*Player, error)
	CreatePlayer(ctx context.Context, player *Player) error
	RenamePlayer(ctx context.Context, playerID, name string) error

	// Users
	GetUser(ctx context.Context, userID string) (*User, error)
	ListUsers(ctx context.Context, role Role) ([]User, error)
	SetUserPoints(ctx context.Context, userID string, points int) error

	// Matches
	GetMatch(ctx context.Context, matchID string) (*Match, error)
	ListMatches(ctx context.Context) ([]Match, error)
	CreateMatch(ctx context.Context, match *Match) error
	SaveMatchResult(ctx context.Context, match *Match) error
	DeleteMatch(ctx context.Context, matchID string) error
	FinishedFinals(ctx context.Context) (FinalSet, error)

	// Predictions
	ListPredictions(ctx context.Context) ([]Prediction, error)
	ListPredictionsByMatch(ctx context.Context, matchID string) ([]Prediction, error)
	ListPredictionsByUser(ctx context.Context, userID string) ([]Prediction, error)
	UpsertPrediction(ctx context.Context, prediction *Prediction) error
	SetPredictionPoints(ctx context.Context, predictionID string, points int) error
	DeletePredictionsByMatch(ctx context.Context, matchID string) error

	// Tournament bets
	ListBets(ctx context.Context) ([]TournamentBet, error)
	ListBetsByUser(ctx context.Context, userID string) ([]TournamentBet, error)
	ListBetsByCategory(ctx context.Context, category Category, types ...BetType) ([]TournamentBet, error)
	UpsertBet(ctx context.Context, bet *TournamentBet) error
	SetBetPoints(ctx context.Context, betID string, points int) error
}
