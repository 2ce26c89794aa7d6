// Package metrics exposes Prometheus collectors for governance decisions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the governance collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ProposalsSubmitted *prometheus.CounterVec
	Decisions          *prometheus.CounterVec
	Conflicts          *prometheus.CounterVec
	Promotions         prometheus.Counter
	PromotionFailures  prometheus.Counter
	SweepExpired       prometheus.Counter
	SweepDuration      prometheus.Histogram
	PendingAge         prometheus.Histogram
}

// New creates and registers the governance metrics.
//
// Registration happens once per process; later calls return the same
// collectors, which avoids duplicate registration panics when several
// engines share a binary (tests, mostly).
//
// Metrics:
//   - govern_proposals_submitted_total{action_type,risk}
//   - govern_decisions_total{status} - every terminal transition
//   - govern_conflicts_total{operation} - lost compare-and-swap races
//   - govern_promotions_total
//   - govern_promotion_failures_total
//   - govern_sweep_expired_total
//   - govern_sweep_duration_seconds
//   - govern_review_latency_seconds - time from submission to review
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ProposalsSubmitted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "govern_proposals_submitted_total",
					Help: "Total number of action proposals submitted",
				},
				[]string{"action_type", "risk"},
			),
			Decisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "govern_decisions_total",
					Help: "Total number of terminal action transitions",
				},
				[]string{"status"},
			),
			Conflicts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "govern_conflicts_total",
					Help: "Total number of transitions that lost a concurrent race",
				},
				[]string{"operation"}, // "review", "assign", "sweep", "auto_execute"
			),
			Promotions: promauto.NewCounter(prometheus.CounterOpts{
				Name: "govern_promotions_total",
				Help: "Total number of rules promoted to level-3 autonomy",
			}),
			PromotionFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "govern_promotion_failures_total",
				Help: "Total number of promotion checks that failed to run",
			}),
			SweepExpired: promauto.NewCounter(prometheus.CounterOpts{
				Name: "govern_sweep_expired_total",
				Help: "Total number of pending actions expired by the sweeper",
			}),
			SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "govern_sweep_duration_seconds",
				Help:    "Duration of expiry sweeps in seconds",
				Buckets: prometheus.DefBuckets,
			}),
			PendingAge: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "govern_review_latency_seconds",
				Help:    "Time between submission and human review in seconds",
				Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 24 * 3600},
			}),
		}
	})
	return globalMetrics
}

func (m *Metrics) RecordSubmitted(actionType, risk string) {
	if m == nil {
		return
	}
	m.ProposalsSubmitted.WithLabelValues(actionType, risk).Inc()
}

func (m *Metrics) RecordDecision(status string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordConflict(operation string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordPromotion() {
	if m == nil {
		return
	}
	m.Promotions.Inc()
}

func (m *Metrics) RecordPromotionFailure() {
	if m == nil {
		return
	}
	m.PromotionFailures.Inc()
}

func (m *Metrics) RecordSweep(expired int, d time.Duration) {
	if m == nil {
		return
	}
	m.SweepExpired.Add(float64(expired))
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordReviewLatency(d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.PendingAge.Observe(d.Seconds())
}
