package domain

import "time"

// EventType names a scoring change published after commit
type EventType string

const (
	EventMatchResultRecorded EventType = "match_result_recorded"
	EventMatchDeleted        EventType = "match_deleted"
	EventPredictionUpserted  EventType = "prediction_upserted"
	EventBetUpserted         EventType = "bet_upserted"
	EventTotalsReconciled    EventType = "totals_reconciled"
)

// ScoringEvent describes a committed change to scoring rows and the user
// totals it produced.
type ScoringEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	MatchID    string         `json:"match_id,omitempty"`
	Category   Category       `json:"category,omitempty"`
	Round      Round          `json:"round,omitempty"`
	Totals     map[string]int `json:"totals,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
