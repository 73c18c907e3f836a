// Package metrics holds the Prometheus collectors of the scoring service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tcbb"

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder groups the service collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	mutations       *prometheus.CounterVec
	mutationSeconds *prometheus.HistogramVec
	rescored        *prometheus.CounterVec
	recomputed      prometheus.Counter
	sideEffectFails *prometheus.CounterVec
	wsClients       prometheus.Gauge
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Scoring mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		mutationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Time spent in a scoring mutation, transaction included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		rescored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rescored_rows_total",
			Help:      "Predictions and bets whose cached points were rewritten.",
		}, []string{"kind"}),
		recomputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_totals_recomputed_total",
			Help:      "User totals recomputed by the aggregation engine.",
		}),
		sideEffectFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Post-commit side effects that failed.",
		}, []string{"target"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
	}
	reg.MustRegister(r.mutations, r.mutationSeconds, r.rescored, r.recomputed, r.sideEffectFails, r.wsClients)
	return r
}

// ObserveMutation counts one mutation and its duration.
func (r *Recorder) ObserveMutation(operation, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(operation, outcome).Inc()
	r.mutationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// AddRescored counts rows of kind ("prediction" or "bet") whose points changed.
func (r *Recorder) AddRescored(kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.rescored.WithLabelValues(kind).Add(float64(n))
}

// AddRecomputed counts recomputed user totals.
func (r *Recorder) AddRecomputed(n int) {
	if r == nil || n == 0 {
		return
	}
	r.recomputed.Add(float64(n))
}

// SideEffectFailed counts a failed post-commit call to target.
func (r *Recorder) SideEffectFailed(target string) {
	if r == nil {
		return
	}
	r.sideEffectFails.WithLabelValues(target).Inc()
}

// SetWebsocketClients sets the connected client gauge.
func (r *Recorder) SetWebsocketClients(n int) {
	if r == nil {
		return
	}
	r.wsClients.Set(float64(n))
}
