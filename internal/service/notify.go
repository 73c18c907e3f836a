package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/metrics"
)

// StandingsMirror receives committed user totals
type StandingsMirror interface {
	PublishTotals(ctx context.Context, totals map[string]int) error
}

// EventPublisher receives committed scoring events
type EventPublisher interface {
	Publish(ctx context.Context, event domain.ScoringEvent) error
}

// RankingBroadcaster pushes refreshed rankings to subscribers
type RankingBroadcaster interface {
	BroadcastRanking(ranking *domain.Ranking)
}

// change is what a committed mutation hands to the notifier.
type change struct {
	event    domain.EventType
	match    *domain.Match
	category domain.Category
	totals   map[string]int
}

// Notifier fans committed changes out to the mirror, the event stream and
// realtime subscribers. Every target is optional and failures are only
// logged: the transaction has already committed.
type Notifier struct {
	mirror      StandingsMirror
	events      EventPublisher
	broadcaster RankingBroadcaster
	rankings    *RankingService
	metrics     *metrics.Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewNotifier creates a notifier with no targets
func NewNotifier(rankings *RankingService, rec *metrics.Recorder, logger *slog.Logger) *Notifier {
	return &Notifier{
		rankings: rankings,
		metrics:  rec,
		logger:   logger,
		now:      time.Now,
	}
}

// SetMirror sets the standings mirror
func (n *Notifier) SetMirror(m StandingsMirror) {
	n.mirror = m
}

// SetPublisher sets the event publisher
func (n *Notifier) SetPublisher(p EventPublisher) {
	n.events = p
}

// SetBroadcaster sets the realtime broadcaster
func (n *Notifier) SetBroadcaster(b RankingBroadcaster) {
	n.broadcaster = b
}

func (n *Notifier) afterCommit(ctx context.Context, c change) {
	if n == nil {
		return
	}
	if c.match != nil && c.category == "" {
		c.category = c.match.Category
	}

	if n.mirror != nil && len(c.totals) > 0 {
		if err := n.mirror.PublishTotals(ctx, c.totals); err != nil {
			n.logger.Warn("failed to mirror user totals", "event", c.event, "users", len(c.totals), "error", err)
			n.metrics.SideEffectFailed("redis")
		}
	}

	if n.events != nil {
		event := domain.ScoringEvent{
			ID:         uuid.NewString(),
			Type:       c.event,
			Category:   c.category,
			Totals:     c.totals,
			OccurredAt: n.now(),
		}
		if c.match != nil {
			event.MatchID = c.match.ID
			event.Round = c.match.Round
		}
		if err := n.events.Publish(ctx, event); err != nil {
			n.logger.Warn("failed to publish scoring event", "event", c.event, "match_id", event.MatchID, "error", err)
			n.metrics.SideEffectFailed("kafka")
		}
	}

	if n.broadcaster != nil && n.rankings != nil {
		scopes := []domain.Scope{domain.ScopeOverall}
		if c.category.Valid() {
			scopes = append(scopes, domain.CategoryScope(c.category))
		}
		for _, scope := range scopes {
			r, err := n.rankings.GetRanking(ctx, scope)
			if err != nil {
				n.logger.Warn("failed to refresh ranking for broadcast", "scope", scope, "error", err)
				n.metrics.SideEffectFailed("websocket")
				continue
			}
			n.broadcaster.BroadcastRanking(r)
		}
	}
}

// Reconciled announces totals rewritten by a full reconcile pass
func (n *Notifier) Reconciled(ctx context.Context, totals map[string]int) {
	n.afterCommit(ctx, change{event: domain.EventTotalsReconciled, totals: totals})
}
