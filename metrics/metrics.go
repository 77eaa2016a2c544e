package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search outcomes used as the "outcome" label.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

type Registry struct {
	reg              *prometheus.Registry
	Searches         *prometheus.CounterVec
	ItemsExtracted   prometheus.Counter
	ItemsSkipped     prometheus.Counter
	SearchLatencySec prometheus.Histogram
	ResultsRanked    prometheus.Gauge
	Runs             prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	searches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "research_keyword_searches_total",
		Help: "Keyword searches by outcome.",
	}, []string{"outcome"})
	extracted := prometheus.NewCounter(prometheus.CounterOpts{Name: "research_items_extracted_total"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "research_items_skipped_total"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "research_search_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	ranked := prometheus.NewGauge(prometheus.GaugeOpts{Name: "research_last_run_products"})
	runs := prometheus.NewCounter(prometheus.CounterOpts{Name: "research_runs_total"})

	r.MustRegister(searches, extracted, skipped, latency, ranked, runs)
	return &Registry{
		reg:              r,
		Searches:         searches,
		ItemsExtracted:   extracted,
		ItemsSkipped:     skipped,
		SearchLatencySec: latency,
		ResultsRanked:    ranked,
		Runs:             runs,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
