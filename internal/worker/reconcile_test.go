package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/memstore"
	"github.com/tcbb-predictions/internal/service"
)

type fakeReplacer struct {
	users []domain.User
	err   error
}

func (f *fakeReplacer) Replace(_ context.Context, users []domain.User) error {
	f.users = append([]domain.User(nil), users...)
	return f.err
}

type fakePublisher struct{ events []domain.ScoringEvent }

func (f *fakePublisher) Publish(_ context.Context, e domain.ScoringEvent) error {
	f.events = append(f.events, e)
	return nil
}

type env struct {
	store     *memstore.Store
	worker    *ReconcileWorker
	mirror    *fakeReplacer
	publisher *fakePublisher
}

func newEnv(t *testing.T, cfg config.ReconcileConfig) *env {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	for _, id := range []string{"ana", "ben", "cid"} {
		require.NoError(t, store.AddUser(ctx, &domain.User{ID: id, Name: id}))
	}

	rankings := service.NewRankingService(store, logger)
	notifier := service.NewNotifier(rankings, nil, logger)
	publisher := &fakePublisher{}
	notifier.SetPublisher(publisher)
	agg := service.NewAggregator(store, nil, logger)
	results := service.NewResultService(store, agg, nil, nil, logger)
	predictions := service.NewPredictionService(store, agg, nil, nil, logger)

	m, err := results.CreateMatch(ctx, domain.CreateMatchRequest{
		Category: domain.CategoryA, Round: domain.RoundFirst,
		Player1Name: "Nadal", Player2Name: "Federer",
	})
	require.NoError(t, err)
	_, err = predictions.UpsertPrediction(ctx, "ana", m.ID, domain.PredictionSubmission{Winner: domain.SlotPlayer1})
	require.NoError(t, err)
	_, err = results.RecordMatchResult(ctx, m.ID, domain.RecordResultRequest{
		Winner:    domain.SlotPlayer1,
		SetScores: []domain.SetScore{{Player1: 6, Player2: 3}, {Player1: 6, Player2: 4}},
	})
	require.NoError(t, err)

	mirror := &fakeReplacer{}
	return &env{
		store:     store,
		worker:    NewReconcileWorker(store, agg, notifier, mirror, &cfg, logger),
		mirror:    mirror,
		publisher: publisher,
	}
}

func TestRunOnce_RepairsDrift(t *testing.T) {
	e := newEnv(t, config.ReconcileConfig{Concurrency: 2})
	ctx := context.Background()
	require.NoError(t, e.store.SetUserPoints(ctx, "ana", 99))
	require.NoError(t, e.store.SetUserPoints(ctx, "cid", 7))

	report, err := e.worker.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Users)
	assert.Equal(t, 2, report.Changed)
	ana, err := e.store.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 5, ana.Points)
	cid, err := e.store.GetUser(ctx, "cid")
	require.NoError(t, err)
	assert.Equal(t, 0, cid.Points)

	require.Len(t, e.mirror.users, 3)
	require.Len(t, e.publisher.events, 1)
	assert.Equal(t, domain.EventTotalsReconciled, e.publisher.events[0].Type)
	assert.Equal(t, map[string]int{"ana": 5, "ben": 0, "cid": 0}, e.publisher.events[0].Totals)
}

func TestRunOnce_NoDriftChangesNothing(t *testing.T) {
	e := newEnv(t, config.ReconcileConfig{})

	report, err := e.worker.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Changed)
}

func TestRunOnce_StorageErrorAborts(t *testing.T) {
	e := newEnv(t, config.ReconcileConfig{Concurrency: 1})
	e.store.FailOn("ListBetsByUser", errors.New("connection reset"))

	_, err := e.worker.RunOnce(context.Background())

	require.Error(t, err)
	assert.Empty(t, e.mirror.users)
	assert.Empty(t, e.publisher.events)
}

func TestRunOnce_MirrorFailureIsNotFatal(t *testing.T) {
	e := newEnv(t, config.ReconcileConfig{})
	e.mirror.err = errors.New("redis down")

	_, err := e.worker.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.Len(t, e.publisher.events, 1)
}

func TestStartStop(t *testing.T) {
	e := newEnv(t, config.ReconcileConfig{Interval: 10 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, e.store.SetUserPoints(ctx, "ben", 42))

	require.NoError(t, e.worker.Start(ctx))
	assert.True(t, e.worker.IsRunning())
	assert.Eventually(t, func() bool {
		u, err := e.store.GetUser(ctx, "ben")
		return err == nil && u.Points == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.worker.Stop())
	assert.False(t, e.worker.IsRunning())
}

func TestStart_RejectsNonPositiveInterval(t *testing.T) {
	e := newEnv(t, config.ReconcileConfig{})

	assert.Error(t, e.worker.Start(context.Background()))
}

func TestRunOnce_MirrorsParticipantsOnly(t *testing.T) {
	e := newEnv(t, config.ReconcileConfig{})
	ctx := context.Background()
	require.NoError(t, e.store.AddUser(ctx, &domain.User{ID: "root", Name: "root", Role: domain.RoleAdmin}))
	require.NoError(t, e.store.SetUserPoints(ctx, "root", 30))

	report, err := e.worker.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Users)
	assert.Equal(t, 1, report.Changed)
	root, err := e.store.GetUser(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 0, root.Points)

	ids := make([]string, 0, len(e.mirror.users))
	for _, u := range e.mirror.users {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []string{"ana", "ben", "cid"}, ids)
	require.Len(t, e.publisher.events, 1)
	assert.NotContains(t, e.publisher.events[0].Totals, "root")
}

func TestRunOnce_MirrorGetsStoredTotals(t *testing.T) {
	e := newEnv(t, config.ReconcileConfig{})
	ctx := context.Background()
	require.NoError(t, e.store.SetUserPoints(ctx, "ana", 99))

	_, err := e.worker.RunOnce(ctx)
	require.NoError(t, err)

	points := make(map[string]int, len(e.mirror.users))
	for _, u := range e.mirror.users {
		points[u.ID] = u.Points
	}
	assert.Equal(t, map[string]int{"ana": 5, "ben": 0, "cid": 0}, points)
}

func TestStartAfterStop(t *testing.T) {
	e := newEnv(t, config.ReconcileConfig{Interval: 10 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, e.worker.Start(ctx))
	require.NoError(t, e.worker.Stop())
	require.NoError(t, e.worker.Stop())

	require.NoError(t, e.store.SetUserPoints(ctx, "cid", 11))
	require.NoError(t, e.worker.Start(ctx))
	assert.True(t, e.worker.IsRunning())
	assert.Eventually(t, func() bool {
		u, err := e.store.GetUser(ctx, "cid")
		return err == nil && u.Points == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, e.worker.Stop())
	assert.False(t, e.worker.IsRunning())
}
