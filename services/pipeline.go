package services

import (
	"context"

	"shopee-research/metrics"
	"shopee-research/models"
	"shopee-research/utils"
)

// Query is one research request from the presentation layer.
type Query struct {
	Keywords []string
	Filter   models.Filter
}

// Result is everything one run hands back for rendering and export.
type Result struct {
	Keywords  []string
	Collected int
	Products  models.ResultSet
	Failures  []models.KeywordError
	Summary   *models.Summary
}

// Empty reports whether no product survived filtering. The caller renders
// a neutral empty state and offers no export.
func (r *Result) Empty() bool {
	return len(r.Products) == 0
}

// Pipeline wires aggregation, ranking and summary together. It keeps no
// results between runs; the aggregator's pacing carries over so that
// back-to-back runs stay polite.
type Pipeline struct {
	aggregator *Aggregator
	ranker     *Ranker
	summary    *SummaryService
	logger     *utils.Logger
	metrics    *metrics.Registry
}

// NewPipeline creates a Pipeline. A nil m records into a private registry.
func NewPipeline(a *Aggregator, r *Ranker, s *SummaryService, logger *utils.Logger, m *metrics.Registry) *Pipeline {
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Pipeline{aggregator: a, ranker: r, summary: s, logger: logger, metrics: m}
}

// Run executes one full search. On ctx cancellation it still ranks what
// was collected and returns it alongside the error.
func (p *Pipeline) Run(ctx context.Context, q Query, obs Observer) (*Result, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	p.metrics.Runs.Inc()

	keywords := CleanKeywords(q.Keywords)
	collected, failures, err := p.aggregator.Aggregate(ctx, keywords, obs)
	if err != nil {
		p.logger.Warn("[pipeline] aggregation interrupted after %d products: %v", len(collected), err)
	}

	ranked := p.ranker.FilterAndRank(collected, q.Filter)
	p.metrics.ResultsRanked.Set(float64(len(ranked)))

	if len(ranked) == 0 {
		obs.Status("No products found within the specified filters.")
	} else {
		obs.Status("Search complete.")
	}

	return &Result{
		Keywords:  keywords,
		Collected: len(collected),
		Products:  ranked,
		Failures:  failures,
		Summary:   p.summary.Generate(ranked, q.Filter.Framing),
	}, err
}
