// Package postgres implements domain.Repository on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
)

const (
	// SQLSTATE codes
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"

	maxTxAttempts = 3
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	db     querier
	logger *slog.Logger

	// set on transaction-bound copies; a pgx.Tx serves one query at a time
	mu   *sync.Mutex
	inTx bool
}

var _ domain.Repository = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		db:     pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// InTx runs fn in a serializable transaction. Serialization failures are
// retried with a fresh transaction; any other error rolls back.
func (r *Repository) InTx(ctx context.Context, fn func(tx domain.Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
		if !isCode(err, codeSerializationFailure) {
			return err
		}
		r.logger.Debug("retrying serialization failure", "attempt", attempt)
	}
	return err
}

// Snapshot runs fn in a read-only repeatable-read transaction so every
// query sees the same committed state.
func (r *Repository) Snapshot(ctx context.Context, fn func(view domain.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (r *Repository) runTx(ctx context.Context, opts pgx.TxOptions, fn func(tx domain.Repository) error) error {
	tx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Warn("rollback failed", "error", err)
		}
	}()

	bound := &Repository{pool: r.pool, db: tx, logger: r.logger, mu: &sync.Mutex{}, inTx: true}
	if err := fn(bound); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// lock serializes queries on a transaction-bound repository.
func (r *Repository) lock() func() {
	if r.mu == nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func now() time.Time {
	return time.Now().UTC()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_players_name ON players(lower(name))`,
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'participant',
			points INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id VARCHAR(64) PRIMARY KEY,
			player1_id VARCHAR(64) NOT NULL REFERENCES players(id),
			player2_id VARCHAR(64) NOT NULL REFERENCES players(id),
			category VARCHAR(20) NOT NULL,
			round VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'SCHEDULED',
			winner_id VARCHAR(64) REFERENCES players(id),
			set_scores JSONB NOT NULL DEFAULT '[]',
			had_tiebreak BOOLEAN NOT NULL DEFAULT FALSE,
			duration_minutes INT,
			scheduled_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (player1_id <> player2_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_one_final ON matches(category) WHERE round = 'FINAL'`,
		`CREATE INDEX IF NOT EXISTS idx_matches_category ON matches(category)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			match_id VARCHAR(64) NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
			winner VARCHAR(10) NOT NULL DEFAULT '',
			set_scores JSONB NOT NULL DEFAULT '[]',
			points_earned INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, match_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_match ON predictions(match_id)`,
		`CREATE TABLE IF NOT EXISTS tournament_bets (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type VARCHAR(20) NOT NULL,
			category VARCHAR(20) NOT NULL,
			player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			points_earned INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, type, category)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tournament_bets_category ON tournament_bets(category, type)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}
