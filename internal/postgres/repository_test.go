package postgres

import (
	"context"
	"errors"
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
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
)

var testDSN string

// TestMain points the tests at TCBB_TEST_DATABASE_URL, or at a throwaway
// postgres container when the variable is unset. Without either the tests skip.
func TestMain(m *testing.M) {
	flag.Parse()
	testDSN = os.Getenv("TCBB_TEST_DATABASE_URL")

	var container *tcpostgres.PostgresContainer
	if testDSN == "" && !testing.Short() {
		ctx := context.Background()
		c, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("tcbb"),
			tcpostgres.WithUsername("tcbb"),
			tcpostgres.WithPassword("tcbb"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			log.Printf("postgres container unavailable, skipping: %v", err)
		} else {
			container = c
			testDSN, err = c.ConnectionString(ctx, "sslmode=disable")
			if err != nil {
				log.Printf("reading container connection string: %v", err)
				testDSN = ""
			}
		}
	}

	code := m.Run()
	if container != nil {
		if err := container.Terminate(context.Background()); err != nil {
			log.Printf("terminating postgres container: %v", err)
		}
	}
	os.Exit(code)
}

// newTestRepository starts every test from empty tables.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testDSN == "" {
		t.Skip("no postgres available")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo, err := NewRepository(&config.PostgresConfig{URL: testDSN, MaxConnections: 4, MinConnections: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	ctx := context.Background()
	require.NoError(t, repo.RunMigrations(ctx))
	_, err = repo.pool.Exec(ctx, `TRUNCATE tournament_bets, predictions, matches, users, players CASCADE`)
	require.NoError(t, err)
	return repo
}

func addUser(t *testing.T, r *Repository, id string) {
	t.Helper()
	_, err := r.pool.Exec(context.Background(),
		`INSERT INTO users (id, name, role) VALUES ($1, $1, 'participant')`, id)
	require.NoError(t, err)
}

func TestRepository_MatchLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	addUser(t, repo, "ana")
	created := time.Now().UTC().Truncate(time.Millisecond)

	p1 := &domain.Player{Name: "Nadal", CreatedAt: created}
	p2 := &domain.Player{Name: "Federer", CreatedAt: created}
	require.NoError(t, repo.CreatePlayer(ctx, p1))
	require.NoError(t, repo.CreatePlayer(ctx, p2))

	found, err := repo.FindPlayerByName(ctx, " nadal ")
	require.NoError(t, err)
	assert.Equal(t, p1.ID, found.ID)

	m := &domain.Match{
		Player1ID: p1.ID,
		Player2ID: p2.ID,
		Category:  domain.CategoryA,
		Round:     domain.RoundFinal,
		Status:    domain.MatchScheduled,
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, repo.CreateMatch(ctx, m))

	pred := &domain.Prediction{UserID: "ana", MatchID: m.ID, Winner: domain.SlotPlayer1,
		SetScores: []domain.SetScore{{Player1: 7, Player2: 6, Tiebreak: "7-4"}}, CreatedAt: created, UpdatedAt: created}
	require.NoError(t, repo.UpsertPrediction(ctx, pred))
	again := &domain.Prediction{UserID: "ana", MatchID: m.ID, Winner: domain.SlotPlayer2, CreatedAt: created.Add(time.Hour), UpdatedAt: created.Add(time.Hour)}
	require.NoError(t, repo.UpsertPrediction(ctx, again))
	assert.Equal(t, pred.ID, again.ID)
	assert.True(t, again.CreatedAt.Equal(created))

	finished := created.Add(2 * time.Hour)
	m.Status = domain.MatchFinished
	m.WinnerID = p1.ID
	m.SetScores = []domain.SetScore{{Player1: 6, Player2: 4}}
	m.FinishedAt = &finished
	require.NoError(t, repo.SaveMatchResult(ctx, m))

	got, err := repo.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nadal", got.Player1Name)
	assert.Equal(t, p1.ID, got.WinnerID)
	assert.Equal(t, m.SetScores, got.SetScores)

	finals, err := repo.FinishedFinals(ctx)
	require.NoError(t, err)
	assert.True(t, finals[domain.CategoryA])

	require.NoError(t, repo.DeletePredictionsByMatch(ctx, m.ID))
	require.NoError(t, repo.DeleteMatch(ctx, m.ID))
	_, err = repo.GetMatch(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)
}

func TestRepository_OneFinalPerCategory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	p1 := &domain.Player{Name: "Sinner"}
	p2 := &domain.Player{Name: "Alcaraz"}
	require.NoError(t, repo.CreatePlayer(ctx, p1))
	require.NoError(t, repo.CreatePlayer(ctx, p2))

	final := func() *domain.Match {
		return &domain.Match{Player1ID: p1.ID, Player2ID: p2.ID, Category: domain.CategoryB,
			Round: domain.RoundFinal, Status: domain.MatchScheduled, CreatedAt: now(), UpdatedAt: now()}
	}
	require.NoError(t, repo.CreateMatch(ctx, final()))
	assert.ErrorIs(t, repo.CreateMatch(ctx, final()), domain.ErrInvalidRound)
}

func TestRepository_InTxRollsBack(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	addUser(t, repo, "ben")

	boom := errors.New("boom")
	err := repo.InTx(ctx, func(tx domain.Repository) error {
		require.NoError(t, tx.SetUserPoints(ctx, "ben", 99))
		return boom
	})
	require.ErrorIs(t, err, boom)

	u, err := repo.GetUser(ctx, "ben")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Points)
}

func TestRepository_BetsByCategory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	addUser(t, repo, "cid")
	p := &domain.Player{Name: "Ruud"}
	require.NoError(t, repo.CreatePlayer(ctx, p))

	for _, bt := range []domain.BetType{domain.BetChampion, domain.BetSemifinalist} {
		require.NoError(t, repo.UpsertBet(ctx, &domain.TournamentBet{
			UserID: "cid", Type: bt, Category: domain.CategoryC, PlayerID: p.ID, CreatedAt: now(), UpdatedAt: now(),
		}))
	}

	all, err := repo.ListBetsByCategory(ctx, domain.CategoryC)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	champions, err := repo.ListBetsByCategory(ctx, domain.CategoryC, domain.BetChampion, domain.BetRunnerUp)
	require.NoError(t, err)
	require.Len(t, champions, 1)
	assert.Equal(t, "Ruud", champions[0].PlayerName)

	err = repo.Snapshot(ctx, func(view domain.Repository) error {
		bets, err := view.ListBetsByUser(ctx, "cid")
		assert.Len(t, bets, 2)
		return err
	})
	require.NoError(t, err)
}
