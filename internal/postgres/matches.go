package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tcbb-predictions/internal/domain"
)

const matchColumns = `
	m.id, m.player1_id, p1.name, m.player2_id, p2.name,
	m.category, m.round, m.status, m.winner_id, m.set_scores, m.had_tiebreak,
	m.duration_minutes, m.scheduled_at, m.finished_at, m.created_at, m.updated_at
`

const matchFrom = `
	FROM matches m
	JOIN players p1 ON p1.id = m.player1_id
	JOIN players p2 ON p2.id = m.player2_id
`

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner) (*domain.Match, error) {
	var (
		m        domain.Match
		winnerID *string
		sets     []byte
	)
	err := row.Scan(
		&m.ID,
		&m.Player1ID,
		&m.Player1Name,
		&m.Player2ID,
		&m.Player2Name,
		&m.Category,
		&m.Round,
		&m.Status,
		&winnerID,
		&sets,
		&m.HadTiebreak,
		&m.DurationMinutes,
		&m.ScheduledAt,
		&m.FinishedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if winnerID != nil {
		m.WinnerID = *winnerID
	}
	if err := json.Unmarshal(sets, &m.SetScores); err != nil {
		return nil, fmt.Errorf("decoding set scores of match %s: %w", m.ID, err)
	}
	return &m, nil
}

func encodeSets(sets []domain.SetScore) ([]byte, error) {
	if sets == nil {
		sets = []domain.SetScore{}
	}
	data, err := json.Marshal(sets)
	if err != nil {
		return nil, fmt.Errorf("marshaling set scores: %w", err)
	}
	return data, nil
}

// GetMatch retrieves a match with its player names
func (r *Repository) GetMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	defer r.lock()()
	query := `SELECT ` + matchColumns + matchFrom + ` WHERE m.id = $1`
	m, err := scanMatch(r.db.QueryRow(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, fmt.Errorf("getting match: %w", err)
	}
	return m, nil
}

// ListMatches returns every match in creation order
func (r *Repository) ListMatches(ctx context.Context) ([]domain.Match, error) {
	defer r.lock()()
	query := `SELECT ` + matchColumns + matchFrom + ` ORDER BY m.created_at, m.id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	return matches, nil
}

// CreateMatch inserts a match, assigning an ID when empty
func (r *Repository) CreateMatch(ctx context.Context, match *domain.Match) error {
	defer r.lock()()
	if match.ID == "" {
		match.ID = uuid.NewString()
	}
	sets, err := encodeSets(match.SetScores)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO matches (id, player1_id, player2_id, category, round, status, winner_id,
			set_scores, had_tiebreak, duration_minutes, scheduled_at, finished_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.db.Exec(ctx, query,
		match.ID,
		match.Player1ID,
		match.Player2ID,
		string(match.Category),
		string(match.Round),
		string(match.Status),
		nullable(match.WinnerID),
		sets,
		match.HadTiebreak,
		match.DurationMinutes,
		match.ScheduledAt,
		match.FinishedAt,
		match.CreatedAt,
		match.UpdatedAt,
	)
	if err != nil {
		if isCode(err, codeUniqueViolation) {
			return domain.InvalidKind(domain.ErrInvalidRound, "round", fmt.Sprintf("category %s already has a final", match.Category))
		}
		return fmt.Errorf("creating match: %w", err)
	}
	return nil
}

// SaveMatchResult stores the result fields of a match
func (r *Repository) SaveMatchResult(ctx context.Context, match *domain.Match) error {
	defer r.lock()()
	sets, err := encodeSets(match.SetScores)
	if err != nil {
		return err
	}

	query := `
		UPDATE matches
		SET status = $2, winner_id = $3, set_scores = $4, had_tiebreak = $5,
			duration_minutes = $6, finished_at = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		match.ID,
		string(match.Status),
		nullable(match.WinnerID),
		sets,
		match.HadTiebreak,
		match.DurationMinutes,
		match.FinishedAt,
		match.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving match result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

// DeleteMatch removes a match
func (r *Repository) DeleteMatch(ctx context.Context, matchID string) error {
	defer r.lock()()
	result, err := r.db.Exec(ctx, `DELETE FROM matches WHERE id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("deleting match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrMatchNotFound
	}
	return nil
}

// FinishedFinals returns the categories whose final carries a result
func (r *Repository) FinishedFinals(ctx context.Context) (domain.FinalSet, error) {
	defer r.lock()()
	query := `
		SELECT DISTINCT category
		FROM matches
		WHERE round = $1 AND status = $2 AND winner_id IS NOT NULL AND jsonb_array_length(set_scores) > 0
	`
	rows, err := r.db.Query(ctx, query, string(domain.RoundFinal), string(domain.MatchFinished))
	if err != nil {
		return nil, fmt.Errorf("listing finished finals: %w", err)
	}
	defer rows.Close()

	finals := make(domain.FinalSet)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		finals[c] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing finished finals: %w", err)
	}
	return finals, nil
}
