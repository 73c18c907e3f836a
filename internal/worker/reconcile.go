// Package worker runs the optional background reconcile pass that
// recomputes every user total from its scored rows and refreshes the
// standings mirror.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/service"
)

// StandingsReplacer rewrites the whole standings mirror
type StandingsReplacer interface {
	Replace(ctx context.Context, users []domain.User) error
}

// Report summarises one reconcile pass
type Report struct {
	Users    int           `json:"users"`
	Changed  int           `json:"changed"`
	Duration time.Duration `json:"duration_ns"`
}

// ReconcileWorker periodically recomputes all user totals
type ReconcileWorker struct {
	repo     domain.Repository
	agg      *service.Aggregator
	notifier *service.Notifier
	mirror   StandingsReplacer
	config   *config.ReconcileConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
	runMu    sync.Mutex
}

// NewReconcileWorker creates a new reconcile worker. mirror may be nil.
func NewReconcileWorker(
	repo domain.Repository,
	agg *service.Aggregator,
	notifier *service.Notifier,
	mirror StandingsReplacer,
	cfg *config.ReconcileConfig,
	logger *slog.Logger,
) *ReconcileWorker {
	return &ReconcileWorker{
		repo:     repo,
		agg:      agg,
		notifier: notifier,
		mirror:   mirror,
		config:   cfg,
		logger:   logger,
	}
}

// Start begins the background reconcile loop
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if w.config.Interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.Info("reconcile worker started", "interval", w.config.Interval, "concurrency", w.config.Concurrency)
	go w.run(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop stops the background loop and waits for an in-flight pass
func (w *ReconcileWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.logger.Info("reconcile worker stopped")
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *ReconcileWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ReconcileWorker) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("reconcile pass failed", "error", err)
			}
		}
	}
}

// RunOnce recomputes every user's total, each in its own transaction, then
// rewrites the standings mirror from one snapshot of participant totals.
// The mirror is a cache: a mutation committing while Replace runs can be
// overwritten there, and its next change or the next pass corrects it.
// Passes never overlap.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (*Report, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	start := time.Now()
	users, err := w.repo.ListUsers(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	totals := make([]int, len(users))
	g, gctx := errgroup.WithContext(ctx)
	if w.config.Concurrency > 0 {
		g.SetLimit(w.config.Concurrency)
	}
	for i, u := range users {
		g.Go(func() error {
			total, err := w.agg.RecomputeUserTotal(gctx, u.ID)
			if err != nil {
				return fmt.Errorf("recomputing %s: %w", u.ID, err)
			}
			totals[i] = total
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Users: len(users)}
	for i := range users {
		if users[i].Points != totals[i] {
			report.Changed++
		}
	}

	var ranked []domain.User
	err = w.repo.Snapshot(ctx, func(view domain.Repository) error {
		var err error
		ranked, err = view.ListUsers(ctx, domain.RoleParticipant)
		if err != nil {
			return fmt.Errorf("listing participants: %w", err)
		}
		if w.mirror != nil {
			if err := w.mirror.Replace(ctx, ranked); err != nil {
				w.logger.Warn("failed to replace standings mirror", "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]int, len(ranked))
	for _, u := range ranked {
		byUser[u.ID] = u.Points
	}
	w.notifier.Reconciled(ctx, byUser)

	report.Duration = time.Since(start)
	w.logger.Info("reconcile pass completed",
		"users", report.Users,
		"changed", report.Changed,
		"duration", report.Duration,
	)
	return report, nil
}
