package domain

import (
	"strings"
	"time"
)

// Scope selects which rows a ranking covers: everything or one category.
type Scope string

// ScopeOverall covers every category.
const ScopeOverall Scope = "overall"

// ParseScope accepts "overall" or a category name.
func ParseScope(s string) (Scope, error) {
	if strings.EqualFold(strings.TrimSpace(s), string(ScopeOverall)) {
		return ScopeOverall, nil
	}
	c, err := ParseCategory(s)
	if err != nil {
		return "", err
	}
	return CategoryScope(c), nil
}

// CategoryScope returns the scope restricted to c.
func CategoryScope(c Category) Scope {
	return Scope(c)
}

// Category returns the category of a category scope.
func (s Scope) Category() (Category, bool) {
	if s == ScopeOverall {
		return "", false
	}
	c := Category(s)
	return c, c.Valid()
}

// Includes reports whether rows of category c belong to the scope.
func (s Scope) Includes(c Category) bool {
	if s == ScopeOverall {
		return true
	}
	return Category(s) == c
}

// PredictionStats are per-user counters within one scope
type PredictionStats struct {
	TotalPredictions int     `json:"total_predictions"`
	SettledCount     int     `json:"settled_predictions"`
	ScoredCount      int     `json:"scored_predictions"`
	CorrectWinners   int     `json:"correct_winners"`
	ExactScores      int     `json:"exact_scores"`
	CurrentStreak    int     `json:"current_streak"`
	WinnerAccuracy   float64 `json:"winner_accuracy"`
	ExactAccuracy    float64 `json:"exact_accuracy"`
	HitRate          float64 `json:"hit_rate"`
	PredictionPoints int     `json:"prediction_points"`
	TournamentPoints int     `json:"tournament_points"`
}

// RankingEntry is one row of a leaderboard
type RankingEntry struct {
	Rank     int             `json:"rank"`
	UserID   string          `json:"user_id"`
	Username string          `json:"username"`
	Points   int             `json:"points"`
	Stats    PredictionStats `json:"stats"`
}

// RankingStats are scope-wide aggregates
type RankingStats struct {
	PlayerCount           int           `json:"player_count"`
	AveragePoints         float64       `json:"average_points"`
	AverageWinnerAccuracy float64       `json:"average_winner_accuracy"`
	AverageExactAccuracy  float64       `json:"average_exact_accuracy"`
	AverageHitRate        float64       `json:"average_hit_rate"`
	Leader                *RankingEntry `json:"leader,omitempty"`
}

// Ranking is a sorted leaderboard for one scope
type Ranking struct {
	Scope       Scope          `json:"scope"`
	Entries     []RankingEntry `json:"entries"`
	Stats       RankingStats   `json:"stats"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// BetStatus describes a tournament bet as seen by its owner
type BetStatus struct {
	TournamentBet
	Decided  bool `json:"decided"`
	Eligible bool `json:"eligible"`
}

// UserStats summarises one user's standing in every scope
type UserStats struct {
	User       User                      `json:"user"`
	Overall    RankingEntry              `json:"overall"`
	Categories map[Category]RankingEntry `json:"categories"`
	Bets       []BetStatus               `json:"bets"`
}

// HistoryEntry is one prediction joined to its match
type HistoryEntry struct {
	PredictionID    string      `json:"prediction_id"`
	MatchID         string      `json:"match_id"`
	Category        Category    `json:"category"`
	Round           Round       `json:"round"`
	Player1Name     string      `json:"player1_name"`
	Player2Name     string      `json:"player2_name"`
	Status          MatchStatus `json:"status"`
	PredictedWinner WinnerSlot  `json:"predicted_winner,omitempty"`
	PredictedSets   []SetScore  `json:"predicted_sets,omitempty"`
	ActualWinner    WinnerSlot  `json:"actual_winner,omitempty"`
	ActualSets      []SetScore  `json:"actual_sets,omitempty"`
	WinnerCorrect   bool        `json:"winner_correct"`
	ExactScore      bool        `json:"exact_score"`
	PointsEarned    int         `json:"points_earned"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Standing is one row of the cached standings mirror
type Standing struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int    `json:"points"`
}
