package redis

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
)

var testAddr string

func TestMain(m *testing.M) {
	flag.Parse()
	testAddr = os.Getenv("TCBB_TEST_REDIS_ADDR")

	var container testcontainers.Container
	if testAddr == "" && !testing.Short() {
		ctx := context.Background()
		c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor: wait.ForAll(
					wait.ForLog("Ready to accept connections"),
					wait.ForListeningPort("6379/tcp"),
				).WithDeadline(45 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			log.Printf("redis container unavailable, skipping: %v", err)
		} else {
			container = c
			testAddr, err = c.Endpoint(ctx, "")
			if err != nil {
				log.Printf("reading redis endpoint: %v", err)
				testAddr = ""
			}
		}
	}

	code := m.Run()
	if container != nil {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminating redis container: %v", err)
		}
	}
	os.Exit(code)
}

func newTestCache(t *testing.T) *StandingsCache {
	t.Helper()
	if testAddr == "" {
		t.Skip("no redis available")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := NewStandingsCache(&config.RedisConfig{Addr: testAddr, KeyPrefix: "test-" + t.Name()}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		cache.client.Del(context.Background(), cache.standingsKey())
		cache.Close()
	})
	return cache
}

func TestStandingsCache_PublishAndRead(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.PublishTotals(ctx, map[string]int{"ana": 45, "ben": 30, "cid": 0}))
	require.NoError(t, cache.PublishTotals(ctx, map[string]int{"cid": 50}))

	top, err := cache.TopN(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.Standing{
		{Rank: 1, UserID: "cid", Points: 50},
		{Rank: 2, UserID: "ana", Points: 45},
	}, top)

	s, err := cache.Standing(ctx, "ben")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Rank)
	assert.Equal(t, 30, s.Points)

	_, err = cache.Standing(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestStandingsCache_Replace(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, cache.PublishTotals(ctx, map[string]int{"gone": 99}))

	require.NoError(t, cache.Replace(ctx, []domain.User{{ID: "ana", Points: 10}, {ID: "ben", Points: 20}}))

	top, err := cache.TopN(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "ben", top[0].UserID)
	_, err = cache.Standing(ctx, "gone")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestStandingsCache_TopNZero(t *testing.T) {
	cache := newTestCache(t)

	top, err := cache.TopN(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}
