// Package redis mirrors committed user totals into a sorted set so
// dashboards can read standings without touching the database. The mirror
// is never consulted by scoring; rankings are always projected live.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
)

// StandingsCache provides Redis-based standings operations
type StandingsCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewStandingsCache creates a new Redis standings cache
func NewStandingsCache(cfg *config.RedisConfig, logger *slog.Logger) (*StandingsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &StandingsCache{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *StandingsCache) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity
func (s *StandingsCache) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// standingsKey returns the Redis key of the overall standings sorted set
func (s *StandingsCache) standingsKey() string {
	return fmt.Sprintf("%s:standings:overall", s.prefix)
}

// PublishTotals writes the given user totals into the sorted set
func (s *StandingsCache) PublishTotals(ctx context.Context, totals map[string]int) error {
	if len(totals) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(totals))
	for userID, points := range totals {
		members = append(members, redis.Z{Score: float64(points), Member: userID})
	}
	if err := s.client.ZAdd(ctx, s.standingsKey(), members...).Err(); err != nil {
		return fmt.Errorf("publishing totals: %w", err)
	}
	return nil
}

// Replace swaps the whole sorted set for the stored totals of users, so
// users that no longer exist drop out.
func (s *StandingsCache) Replace(ctx context.Context, users []domain.User) error {
	key := s.standingsKey()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(users) > 0 {
		members := make([]redis.Z, len(users))
		for i, u := range users {
			members[i] = redis.Z{Score: float64(u.Points), Member: u.ID}
		}
		pipe.ZAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing standings: %w", err)
	}

	s.logger.Debug("standings replaced", "users", len(users))
	return nil
}

// TopN returns the n highest totals. Ties are ordered by user ID, not by
// the ranking projection's order.
func (s *StandingsCache) TopN(ctx context.Context, n int) ([]domain.Standing, error) {
	if n <= 0 {
		return []domain.Standing{}, nil
	}
	results, err := s.client.ZRevRangeWithScores(ctx, s.standingsKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	standings := make([]domain.Standing, len(results))
	for i, result := range results {
		standings[i] = domain.Standing{
			Rank:   i + 1,
			UserID: result.Member.(string),
			Points: int(result.Score),
		}
	}
	return standings, nil
}

// Standing returns one user's cached position
func (s *StandingsCache) Standing(ctx context.Context, userID string) (*domain.Standing, error) {
	key := s.standingsKey()

	pipe := s.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, userID)
	scoreCmd := pipe.ZScore(ctx, key, userID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("getting standing: %w", err)
	}

	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting rank: %w", err)
	}
	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score: %w", err)
	}

	return &domain.Standing{Rank: int(rank) + 1, UserID: userID, Points: int(score)}, nil
}
