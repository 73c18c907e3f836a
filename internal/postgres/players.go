package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tcbb-predictions/internal/domain"
)

// GetPlayer retrieves a player by ID
func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	defer r.lock()()
	query := `SELECT id, name, created_at FROM players WHERE id = $1`
	var p domain.Player
	err := r.db.QueryRow(ctx, query, playerID).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return &p, nil
}

// FindPlayerByName looks a player up by name, ignoring case and surrounding space
func (r *Repository) FindPlayerByName(ctx context.Context, name string) (*domain.Player, error) {
	defer r.lock()()
	query := `SELECT id, name, created_at FROM players WHERE lower(name) = lower($1)`
	var p domain.Player
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("finding player: %w", err)
	}
	return &p, nil
}

// CreatePlayer inserts a player, assigning an ID when empty
func (r *Repository) CreatePlayer(ctx context.Context, player *domain.Player) error {
	defer r.lock()()
	if player.ID == "" {
		player.ID = uuid.NewString()
	}
	if player.CreatedAt.IsZero() {
		player.CreatedAt = now()
	}
	query := `INSERT INTO players (id, name, created_at) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, player.ID, player.Name, player.CreatedAt)
	if err != nil {
		if isCode(err, codeUniqueViolation) {
			return domain.Invalid("name", fmt.Sprintf("player %q already exists", player.Name))
		}
		return fmt.Errorf("creating player: %w", err)
	}
	return nil
}

// RenamePlayer changes a player's display name
func (r *Repository) RenamePlayer(ctx context.Context, playerID, name string) error {
	defer r.lock()()
	result, err := r.db.Exec(ctx, `UPDATE players SET name = $2 WHERE id = $1`, playerID, name)
	if err != nil {
		if isCode(err, codeUniqueViolation) {
			return domain.Invalid("name", fmt.Sprintf("player %q already exists", name))
		}
		return fmt.Errorf("renaming player: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	defer r.lock()()
	query := `SELECT id, name, role, points, created_at, updated_at FROM users WHERE id = $1`
	var u domain.User
	err := r.db.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Name, &u.Role, &u.Points, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

// ListUsers returns users with role, or every user when role is empty
func (r *Repository) ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error) {
	defer r.lock()()
	query := `
		SELECT id, name, role, points, created_at, updated_at
		FROM users
		WHERE $1::text = '' OR role = $1::text
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, string(role))
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Points, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// SetUserPoints stores a recomputed total
func (r *Repository) SetUserPoints(ctx context.Context, userID string, points int) error {
	defer r.lock()()
	result, err := r.db.Exec(ctx, `UPDATE users SET points = $2, updated_at = $3 WHERE id = $1`, userID, points, now())
	if err != nil {
		return fmt.Errorf("setting user points: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
