package domain

import (
	"fmt"
	"strings"
	"time"
)

// SetScore is the game count of one set. An empty Tiebreak means no tiebreak was played.
type SetScore struct {
	Player1  int    `json:"player1"`
	Player2  int    `json:"player2"`
	Tiebreak string `json:"tiebreak,omitempty"`
}

// HasTiebreak reports whether a tiebreak label is present.
func (s SetScore) HasTiebreak() bool {
	return strings.TrimSpace(s.Tiebreak) != ""
}

// ValidateSetScores checks every entry of a set-score sequence.
// An empty sequence is accepted here; callers decide whether it is required.
func ValidateSetScores(field string, sets []SetScore) error {
	for i, s := range sets {
		if s.Player1 < 0 || s.Player2 < 0 {
			return Invalid(fmt.Sprintf("%s[%d]", field, i), "games must be non-negative")
		}
	}
	return nil
}

// AnyTiebreak reports whether any set in sets carries a tiebreak label.
func AnyTiebreak(sets []SetScore) bool {
	for _, s := range sets {
		if s.HasTiebreak() {
			return true
		}
	}
	return false
}

// Player is a tournament entrant
type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Match is a single scheduled or played match
type Match struct {
	ID              string      `json:"id"`
	Player1ID       string      `json:"player1_id"`
	Player1Name     string      `json:"player1_name,omitempty"`
	Player2ID       string      `json:"player2_id"`
	Player2Name     string      `json:"player2_name,omitempty"`
	Category        Category    `json:"category"`
	Round           Round       `json:"round"`
	Status          MatchStatus `json:"status"`
	WinnerID        string      `json:"winner_id,omitempty"`
	SetScores       []SetScore  `json:"set_scores,omitempty"`
	HadTiebreak     bool        `json:"had_tiebreak"`
	DurationMinutes *int        `json:"duration_minutes,omitempty"`
	ScheduledAt     *time.Time  `json:"scheduled_at,omitempty"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// IsFinished reports whether the match carries a usable result.
func (m *Match) IsFinished() bool {
	return m.Status == MatchFinished && m.WinnerID != "" && len(m.SetScores) > 0
}

// IsFinal reports whether the match is the final of its category.
func (m *Match) IsFinal() bool {
	return m.Round == RoundFinal
}

// PlayerID returns the player occupying slot.
func (m *Match) PlayerID(slot WinnerSlot) string {
	switch slot {
	case SlotPlayer1:
		return m.Player1ID
	case SlotPlayer2:
		return m.Player2ID
	}
	return ""
}

// WinnerSlot resolves WinnerID to a side. It returns SlotNone when the
// match has no winner or the winner is not one of its players.
func (m *Match) WinnerSlot() WinnerSlot {
	switch {
	case m.WinnerID == "":
		return SlotNone
	case m.WinnerID == m.Player1ID:
		return SlotPlayer1
	case m.WinnerID == m.Player2ID:
		return SlotPlayer2
	}
	return SlotNone
}

// LoserID returns the player who did not win, or "" when there is no winner.
func (m *Match) LoserID() string {
	switch m.WinnerSlot() {
	case SlotPlayer1:
		return m.Player2ID
	case SlotPlayer2:
		return m.Player1ID
	}
	return ""
}

// Prediction is a user's pick for one match
type Prediction struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	MatchID      string     `json:"match_id"`
	Winner       WinnerSlot `json:"winner,omitempty"`
	SetScores    []SetScore `json:"set_scores,omitempty"`
	PointsEarned int        `json:"points_earned"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TournamentBet is a user's pick for a tournament outcome in one category
type TournamentBet struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Type         BetType   `json:"type"`
	Category     Category  `json:"category"`
	PlayerID     string    `json:"player_id"`
	PlayerName   string    `json:"player_name,omitempty"`
	PointsEarned int       `json:"points_earned"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User is an account with a cached point total
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FinalSet records which categories have a finished final with a recorded winner.
type FinalSet map[Category]bool

// FinalsFrom builds a FinalSet from matches.
func FinalsFrom(matches []Match) FinalSet {
	finals := make(FinalSet)
	for i := range matches {
		m := &matches[i]
		if m.IsFinal() && m.IsFinished() {
			finals[m.Category] = true
		}
	}
	return finals
}

// RecordResultRequest is the admin input for finishing or editing a match result
type RecordResultRequest struct {
	Winner          WinnerSlot `json:"winner"`
	SetScores       []SetScore `json:"set_scores"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

// Validate rejects malformed result input before any write.
func (r *RecordResultRequest) Validate() error {
	if !r.Winner.Valid() {
		return InvalidKind(ErrInvalidWinnerSlot, "winner", "must be player1 or player2")
	}
	if len(r.SetScores) == 0 {
		return InvalidKind(ErrEmptySetScores, "set_scores", "at least one set is required")
	}
	if err := ValidateSetScores("set_scores", r.SetScores); err != nil {
		return err
	}
	if r.DurationMinutes != nil && *r.DurationMinutes < 0 {
		return Invalid("duration_minutes", "must be non-negative")
	}
	return nil
}

// CreateMatchRequest is the admin input for scheduling a match
type CreateMatchRequest struct {
	Category    Category   `json:"category"`
	Round       Round      `json:"round"`
	Player1Name string     `json:"player1_name"`
	Player2Name string     `json:"player2_name"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// EditPlayersRequest renames one or both players of a match
type EditPlayersRequest struct {
	Player1Name *string `json:"player1_name,omitempty"`
	Player2Name *string `json:"player2_name,omitempty"`
}

// PredictionSubmission is the user input for a match prediction
type PredictionSubmission struct {
	Winner    WinnerSlot `json:"winner,omitempty"`
	SetScores []SetScore `json:"set_scores,omitempty"`
}

// BetSubmission is the user input for a tournament bet
type BetSubmission struct {
	Type       BetType  `json:"type"`
	Category   Category `json:"category"`
	PlayerName string   `json:"player_name"`
}
