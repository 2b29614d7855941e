// Package metrics exposes Prometheus instrumentation for the matcher and
// the recommender.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cisec/aisac-logformat/internal/matcher"
)

// Metrics implements matcher.Observer and recommend.Observer.
type Metrics struct {
	Matches           *prometheus.CounterVec // by status
	MatchDuration     prometheus.Histogram
	CompileFailures   prometheus.Counter
	TemplateTimeouts  prometheus.Counter
	GenericSkips      prometheus.Counter
	TaskTimeouts      prometheus.Counter
	Recommendations   prometheus.Counter
	RecommendDuration prometheus.Histogram
	MemoLookups       *prometheus.CounterVec // by result
	Reloads           *prometheus.CounterVec // by result
	CatalogFormats    prometheus.Gauge
}

// NewMetrics creates and registers the metrics. The registerer may be the
// default registry or a test registry.
func NewMetrics(reg prometheus.Registerer, instanceName string) *Metrics {
	labels := prometheus.Labels{"instance": instanceName}

	m := &Metrics{
		Matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "logformat_matches_total",
			Help:        "Format matches by outcome status",
			ConstLabels: labels,
		}, []string{"status"}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "logformat_match_duration_seconds",
			Help:        "Time spent matching one line against one format",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
		CompileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "logformat_template_compile_failures_total",
			Help:        "Templates that could not be compiled",
			ConstLabels: labels,
		}),
		TemplateTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "logformat_template_timeouts_total",
			Help:        "Template matches aborted by the regex timeout",
			ConstLabels: labels,
		}),
		GenericSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "logformat_generic_templates_skipped_total",
			Help:        "Templates skipped as over-generic",
			ConstLabels: labels,
		}),
		TaskTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "logformat_task_timeouts_total",
			Help:        "Per-format match tasks that hit their deadline",
			ConstLabels: labels,
		}),
		Recommendations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "logformat_recommendations_total",
			Help:        "Recommendations returned",
			ConstLabels: labels,
		}),
		RecommendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "logformat_recommend_duration_seconds",
			Help:        "Time spent ranking the catalog for one line",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		MemoLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "logformat_memo_lookups_total",
			Help:        "Result memo lookups by result",
			ConstLabels: labels,
		}, []string{"result"}),
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "logformat_catalog_reloads_total",
			Help:        "Catalog reloads by result",
			ConstLabels: labels,
		}, []string{"result"}),
		CatalogFormats: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "logformat_catalog_formats",
			Help:        "Formats in the active catalog",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.Matches,
		m.MatchDuration,
		m.CompileFailures,
		m.TemplateTimeouts,
		m.GenericSkips,
		m.TaskTimeouts,
		m.Recommendations,
		m.RecommendDuration,
		m.MemoLookups,
		m.Reloads,
		m.CatalogFormats,
	)

	return m
}

// ObserveMatch records one format match.
func (m *Metrics) ObserveMatch(status matcher.Status, elapsed time.Duration) {
	m.Matches.WithLabelValues(status.String()).Inc()
	m.MatchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCompileFailure()  { m.CompileFailures.Inc() }
func (m *Metrics) ObserveTemplateTimeout() { m.TemplateTimeouts.Inc() }
func (m *Metrics) ObserveGenericSkip()     { m.GenericSkips.Inc() }
func (m *Metrics) ObserveTaskTimeout()     { m.TaskTimeouts.Inc() }

// ObserveRecommend records one ranked request.
func (m *Metrics) ObserveRecommend(elapsed time.Duration, results int) {
	m.Recommendations.Add(float64(results))
	m.RecommendDuration.Observe(elapsed.Seconds())
}

// ObserveMemo records a result memo lookup.
func (m *Metrics) ObserveMemo(hit bool) {
	if hit {
		m.MemoLookups.WithLabelValues("hit").Inc()
		return
	}
	m.MemoLookups.WithLabelValues("miss").Inc()
}

// ObserveReload records a catalog reload.
func (m *Metrics) ObserveReload(formats int, err error) {
	if err != nil {
		m.Reloads.WithLabelValues("error").Inc()
		return
	}
	m.Reloads.WithLabelValues("success").Inc()
	m.CatalogFormats.Set(float64(formats))
}

// SetCatalogFormats sets the active catalog size.
func (m *Metrics) SetCatalogFormats(n int) {
	m.CatalogFormats.Set(float64(n))
}
