// Package metrics holds the Prometheus instruments for index builds and
// entity resolution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "grounding"

// Metrics groups every instrument. A nil *Metrics records nothing.
type Metrics struct {
	resolutionsTotal      *prometheus.CounterVec
	resolveLatencySeconds prometheus.Histogram
	stageTotal            *prometheus.CounterVec
	clarificationsTotal   prometheus.Counter
	choicesRecordedTotal  *prometheus.CounterVec

	indexBuildsTotal     *prometheus.CounterVec
	indexBuildSeconds    prometheus.Histogram
	indexEntries         prometheus.Gauge
	indexVariations      prometheus.Gauge
	abbreviationRules    prometheus.Gauge
	columnProfileSeconds *prometheus.HistogramVec
}

// New registers the instruments with reg. A nil reg uses a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		// Labels: source (user_preference, exact, abbreviation, fuzzy, context, clarification, no_match)
		resolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Resolved mentions by the stage that produced the result",
		}, []string{"source"}),
		resolveLatencySeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolve_seconds",
			Help:      "Time spent resolving one mention",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		stageTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "stage_entered_total",
			Help:      "Pipeline stages entered",
		}, []string{"stage"}),
		clarificationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "clarifications_total",
			Help:      "Results that asked the user to confirm or choose",
		}),
		// Labels: after_clarification (true, false)
		choicesRecordedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preferences",
			Name:      "choices_recorded_total",
			Help:      "User choices written to the preference store",
		}, []string{"after_clarification"}),

		// Labels: status (success, error)
		indexBuildsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "builds_total",
			Help:      "Value index builds by outcome",
		}, []string{"status"}),
		indexBuildSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "build_seconds",
			Help:      "End-to-end index build time including profiling",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		indexEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "entries",
			Help:      "Entries in the published index",
		}),
		indexVariations: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "variations",
			Help:      "Distinct variation keys in the published index",
		}),
		abbreviationRules: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "abbreviation_rules",
			Help:      "Abbreviation rules in the published snapshot",
		}),
		// Labels: column (table.column)
		columnProfileSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "column_profile_seconds",
			Help:      "Time spent reading one column's value distribution",
			Buckets:   prometheus.DefBuckets,
		}, []string{"column"}),
	}
}

// RecordResolution counts one finished resolve call.
func (m *Metrics) RecordResolution(source string, clarification bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.resolutionsTotal.WithLabelValues(source).Inc()
	m.resolveLatencySeconds.Observe(elapsed.Seconds())
	if clarification {
		m.clarificationsTotal.Inc()
	}
}

// RecordStage counts entry into a pipeline stage.
func (m *Metrics) RecordStage(stage string) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(stage).Inc()
}

// RecordChoice counts a write to the preference store.
func (m *Metrics) RecordChoice(afterClarification bool) {
	if m == nil {
		return
	}
	label := "false"
	if afterClarification {
		label = "true"
	}
	m.choicesRecordedTotal.WithLabelValues(label).Inc()
}

// RecordColumnProfile observes how long one column took to profile.
func (m *Metrics) RecordColumnProfile(column string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.columnProfileSeconds.WithLabelValues(column).Observe(elapsed.Seconds())
}

// RecordBuildFailure counts a failed index build.
func (m *Metrics) RecordBuildFailure(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.indexBuildsTotal.WithLabelValues("error").Inc()
	m.indexBuildSeconds.Observe(elapsed.Seconds())
}

// RecordBuild counts a successful build and sets the snapshot gauges.
func (m *Metrics) RecordBuild(entries, variations, rules int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.indexBuildsTotal.WithLabelValues("success").Inc()
	m.indexBuildSeconds.Observe(elapsed.Seconds())
	m.indexEntries.Set(float64(entries))
	m.indexVariations.Set(float64(variations))
	m.abbreviationRules.Set(float64(rules))
}
