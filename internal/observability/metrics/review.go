package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

// ReviewMetrics records rule-set builds, paragraph outcomes and embedding
// batches. It implements ports.ReviewMetrics.
type ReviewMetrics struct {
	service string

	ruleSetBuilds   *prometheus.CounterVec
	rulesExtracted  prometheus.Histogram
	chunksDropped   prometheus.Counter
	paragraphsTotal *prometheus.CounterVec
	appliedRules    *prometheus.CounterVec
	embedBatches    *prometheus.CounterVec
	embedBatchSize  prometheus.Histogram
	reviewDuration  *prometheus.HistogramVec
	reviewsInFlight prometheus.Gauge
	breakerState    *prometheus.GaugeVec
}

func NewReviewMetrics(service string, registerer prometheus.Registerer) *ReviewMetrics {
	constLabels := prometheus.Labels{"service": service}
	m := &ReviewMetrics{
		service: service,
		ruleSetBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csr", Subsystem: "rules", Name: "builds_total",
			Help: "Rule-set builds by status.", ConstLabels: constLabels,
		}, []string{"status"}),
		rulesExtracted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "csr", Subsystem: "rules", Name: "per_build",
			Help:    "Rules per successfully built rule set.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800}, ConstLabels: constLabels,
		}),
		chunksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "csr", Subsystem: "rules", Name: "chunks_dropped_total",
			Help: "Style-guide chunks that did not become rules.", ConstLabels: constLabels,
		}),
		paragraphsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csr", Subsystem: "review", Name: "paragraphs_total",
			Help: "Reviewed paragraphs by status and whether they changed.", ConstLabels: constLabels,
		}, []string{"status", "changed"}),
		appliedRules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csr", Subsystem: "review", Name: "applied_rules_total",
			Help: "Applied rules by rule type.", ConstLabels: constLabels,
		}, []string{"type"}),
		embedBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csr", Subsystem: "embed", Name: "batches_total",
			Help: "Embedding batches by status.", ConstLabels: constLabels,
		}, []string{"status"}),
		embedBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "csr", Subsystem: "embed", Name: "batch_size",
			Help:    "Texts per embedding batch.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128}, ConstLabels: constLabels,
		}),
		reviewDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "csr", Subsystem: "review", Name: "duration_seconds",
			Help:    "Document review duration by status.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}, ConstLabels: constLabels,
		}, []string{"status"}),
		reviewsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "csr", Subsystem: "review", Name: "in_flight",
			Help: "Document reviews currently running.", ConstLabels: constLabels,
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "csr", Subsystem: "backend", Name: "circuit_open",
			Help: "1 when the circuit breaker of a backend operation is not closed.", ConstLabels: constLabels,
		}, []string{"operation"}),
	}
	registerer.MustRegister(
		m.ruleSetBuilds, m.rulesExtracted, m.chunksDropped,
		m.paragraphsTotal, m.appliedRules,
		m.embedBatches, m.embedBatchSize,
		m.reviewDuration, m.reviewsInFlight, m.breakerState,
	)
	return m
}

func (m *ReviewMetrics) ObserveRuleSetBuild(rules, dropped int, err error) {
	m.ruleSetBuilds.WithLabelValues(status(err)).Inc()
	m.chunksDropped.Add(float64(dropped))
	if err == nil {
		m.rulesExtracted.Observe(float64(rules))
	}
}

func (m *ReviewMetrics) ObserveParagraph(s domain.ParagraphStatus, changed bool) {
	label := "false"
	if changed {
		label = "true"
	}
	m.paragraphsTotal.WithLabelValues(string(s), label).Inc()
}

func (m *ReviewMetrics) ObserveAppliedRule(t domain.RuleType) {
	m.appliedRules.WithLabelValues(string(t)).Inc()
}

func (m *ReviewMetrics) ObserveEmbedBatch(size int, err error) {
	m.embedBatches.WithLabelValues(status(err)).Inc()
	m.embedBatchSize.Observe(float64(size))
}

func (m *ReviewMetrics) StartReview() {
	m.reviewsInFlight.Inc()
}

func (m *ReviewMetrics) FinishReview(d time.Duration, err error) {
	m.reviewsInFlight.Dec()
	m.reviewDuration.WithLabelValues(status(err)).Observe(d.Seconds())
}

// ObserveBreakerState matches resilience.Config.OnStateChange.
func (m *ReviewMetrics) ObserveBreakerState(operation, _, to string) {
	open := 0.0
	if to != "closed" {
		open = 1
	}
	m.breakerState.WithLabelValues(operation).Set(open)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
