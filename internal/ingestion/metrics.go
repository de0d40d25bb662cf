package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Commit outcomes recorded by Metrics.
const (
	commitOutcomeCommitted = "committed"
	commitOutcomeNoop      = "noop"
	commitOutcomeRefused   = "refused"
	commitOutcomeFailed    = "failed"
)

// Metrics exposes pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	rowsStaged         prometheus.Counter
	rowsCommitted      prometheus.Counter
	uploadsRejected    prometheus.Counter
	commits            *prometheus.CounterVec
	validationDuration prometheus.Histogram
}

// NewMetrics registers the ingestion collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		rowsStaged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "drillops",
			Subsystem: "ingestion",
			Name:      "rows_staged_total",
			Help:      "Rows written to the staging store.",
		}),
		rowsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "drillops",
			Subsystem: "ingestion",
			Name:      "rows_committed_total",
			Help:      "Rows promoted into drilling records.",
		}),
		uploadsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "drillops",
			Subsystem: "ingestion",
			Name:      "uploads_rejected_total",
			Help:      "Uploads rejected before staging.",
		}),
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drillops",
			Subsystem: "ingestion",
			Name:      "commits_total",
			Help:      "Commit attempts by outcome.",
		}, []string{"outcome"}),
		validationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "drillops",
			Subsystem: "ingestion",
			Name:      "validation_duration_seconds",
			Help:      "Time spent validating a batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) staged(rows int) {
	if m == nil {
		return
	}
	m.rowsStaged.Add(float64(rows))
}

func (m *Metrics) rejected() {
	if m == nil {
		return
	}
	m.uploadsRejected.Inc()
}

func (m *Metrics) committed(outcome string, rows int) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
	if rows > 0 {
		m.rowsCommitted.Add(float64(rows))
	}
}

func (m *Metrics) observeValidation(started time.Time) {
	if m == nil {
		return
	}
	m.validationDuration.Observe(time.Since(started).Seconds())
}
