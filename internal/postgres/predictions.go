package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tcbb-predictions/internal/domain"
)

const predictionColumns = `id, user_id, match_id, winner, set_scores, points_earned, created_at, updated_at`

func (r *Repository) listPredictions(ctx context.Context, where string, args ...any) ([]domain.Prediction, error) {
	defer r.lock()()
	query := `SELECT ` + predictionColumns + ` FROM predictions ` + where + ` ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	defer rows.Close()

	var predictions []domain.Prediction
	for rows.Next() {
		var (
			p    domain.Prediction
			sets []byte
		)
		err := rows.Scan(&p.ID, &p.UserID, &p.MatchID, &p.Winner, &sets, &p.PointsEarned, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		if err := json.Unmarshal(sets, &p.SetScores); err != nil {
			return nil, fmt.Errorf("decoding set scores of prediction %s: %w", p.ID, err)
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	return predictions, nil
}

// ListPredictions returns every prediction
func (r *Repository) ListPredictions(ctx context.Context) ([]domain.Prediction, error) {
	return r.listPredictions(ctx, "")
}

// ListPredictionsByMatch returns the predictions made on a match
func (r *Repository) ListPredictionsByMatch(ctx context.Context, matchID string) ([]domain.Prediction, error) {
	return r.listPredictions(ctx, "WHERE match_id = $1", matchID)
}

// ListPredictionsByUser returns a user's predictions
func (r *Repository) ListPredictionsByUser(ctx context.Context, userID string) ([]domain.Prediction, error) {
	return r.listPredictions(ctx, "WHERE user_id = $1", userID)
}

// UpsertPrediction inserts or replaces the prediction of (user, match).
// On conflict the existing ID and creation time are kept and written back.
func (r *Repository) UpsertPrediction(ctx context.Context, prediction *domain.Prediction) error {
	defer r.lock()()
	if prediction.ID == "" {
		prediction.ID = uuid.NewString()
	}
	sets, err := encodeSets(prediction.SetScores)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO predictions (id, user_id, match_id, winner, set_scores, points_earned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, match_id)
		DO UPDATE SET winner = EXCLUDED.winner, set_scores = EXCLUDED.set_scores,
			points_earned = EXCLUDED.points_earned, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err = r.db.QueryRow(ctx, query,
		prediction.ID,
		prediction.UserID,
		prediction.MatchID,
		string(prediction.Winner),
		sets,
		prediction.PointsEarned,
		prediction.CreatedAt,
		prediction.UpdatedAt,
	).Scan(&prediction.ID, &prediction.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting prediction: %w", err)
	}
	return nil
}

// SetPredictionPoints stores a rescored prediction
func (r *Repository) SetPredictionPoints(ctx context.Context, predictionID string, points int) error {
	defer r.lock()()
	result, err := r.db.Exec(ctx, `UPDATE predictions SET points_earned = $2 WHERE id = $1`, predictionID, points)
	if err != nil {
		return fmt.Errorf("setting prediction points: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("prediction %s: %w", predictionID, domain.ErrInvalidRequest)
	}
	return nil
}

// DeletePredictionsByMatch removes every prediction on a match
func (r *Repository) DeletePredictionsByMatch(ctx context.Context, matchID string) error {
	defer r.lock()()
	_, err := r.db.Exec(ctx, `DELETE FROM predictions WHERE match_id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("deleting predictions: %w", err)
	}
	return nil
}

func (r *Repository) listBets(ctx context.Context, where string, args ...any) ([]domain.TournamentBet, error) {
	defer r.lock()()
	query := `
		SELECT b.id, b.user_id, b.type, b.category, b.player_id, p.name, b.points_earned, b.created_at, b.updated_at
		FROM tournament_bets b
		JOIN players p ON p.id = b.player_id
		` + where + `
		ORDER BY b.created_at, b.id
	`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tournament bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.TournamentBet
	for rows.Next() {
		var b domain.TournamentBet
		err := rows.Scan(&b.ID, &b.UserID, &b.Type, &b.Category, &b.PlayerID, &b.PlayerName, &b.PointsEarned, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning tournament bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tournament bets: %w", err)
	}
	return bets, nil
}

// ListBets returns every tournament bet
func (r *Repository) ListBets(ctx context.Context) ([]domain.TournamentBet, error) {
	return r.listBets(ctx, "")
}

// ListBetsByUser returns a user's tournament bets
func (r *Repository) ListBetsByUser(ctx context.Context, userID string) ([]domain.TournamentBet, error) {
	return r.listBets(ctx, "WHERE b.user_id = $1", userID)
}

// ListBetsByCategory returns the bets of a category, restricted to types when given
func (r *Repository) ListBetsByCategory(ctx context.Context, category domain.Category, types ...domain.BetType) ([]domain.TournamentBet, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return r.listBets(ctx, "WHERE b.category = $1 AND (cardinality($2::text[]) = 0 OR b.type = ANY($2::text[]))", string(category), names)
}

// UpsertBet inserts or replaces the bet of (user, type, category)
func (r *Repository) UpsertBet(ctx context.Context, bet *domain.TournamentBet) error {
	defer r.lock()()
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}

	query := `
		INSERT INTO tournament_bets (id, user_id, type, category, player_id, points_earned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, type, category)
		DO UPDATE SET player_id = EXCLUDED.player_id, points_earned = EXCLUDED.points_earned,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		bet.ID,
		bet.UserID,
		string(bet.Type),
		string(bet.Category),
		bet.PlayerID,
		bet.PointsEarned,
		bet.CreatedAt,
		bet.UpdatedAt,
	).Scan(&bet.ID, &bet.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting tournament bet: %w", err)
	}
	return nil
}

// SetBetPoints stores a rescored bet
func (r *Repository) SetBetPoints(ctx context.Context, betID string, points int) error {
	defer r.lock()()
	result, err := r.db.Exec(ctx, `UPDATE tournament_bets SET points_earned = $2 WHERE id = $1`, betID, points)
	if err != nil {
		return fmt.Errorf("setting bet points: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("tournament bet %s: %w", betID, domain.ErrInvalidRequest)
	}
	return nil
}
