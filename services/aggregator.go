package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shopee-research/metrics"
	"shopee-research/models"
	"shopee-research/utils"
)

// Searcher runs one keyword query against the search API.
type Searcher interface {
	Search(ctx context.Context, req models.SearchRequest) ([]models.RawListing, error)
}

// Observer receives progress from a running aggregation. Calls happen on
// the aggregating goroutine, in keyword order.
type Observer interface {
	Status(msg string)
	Progress(done, total int)
	Warn(keyword string, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Status(string)      {}
func (NopObserver) Progress(int, int)  {}
func (NopObserver) Warn(string, error) {}

// Aggregator searches keywords one after another and collects the
// extracted records. Concurrent Aggregate calls run one at a time and share
// the pacer, so at most one search is in flight per Aggregator.
type Aggregator struct {
	searcher  Searcher
	extractor *Extractor
	template  models.SearchRequest
	logger    *utils.Logger
	metrics   *metrics.Registry

	slot  chan struct{}
	pacer *utils.Pacer
}

// NewAggregator creates an Aggregator. template supplies every request
// field except the keyword; delayMs is the pause between the end of one
// keyword request and the start of the next. A nil m records into a
// private registry.
func NewAggregator(s Searcher, e *Extractor, template models.SearchRequest, delayMs int,
	logger *utils.Logger, m *metrics.Registry) *Aggregator {
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Aggregator{
		searcher:  s,
		extractor: e,
		template:  template,
		logger:    logger,
		metrics:   m,
		slot:      make(chan struct{}, 1),
		pacer:     utils.NewPacer(delayMs),
	}
}

// Aggregate processes keywords in input order, skipping blank ones. A
// failed keyword contributes no records and is reported through obs and
// the returned failures; the loop moves on. Only ctx cancellation stops it
// early, in which case the records gathered so far are returned with
// ctx's error.
func (a *Aggregator) Aggregate(ctx context.Context, keywords []string, obs Observer) (models.ResultSet, []models.KeywordError, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	select {
	case a.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	defer func() { <-a.slot }()

	kws := CleanKeywords(keywords)
	total := len(kws)

	var results models.ResultSet
	var failures []models.KeywordError

	for i, kw := range kws {
		if err := a.pacer.Wait(ctx); err != nil {
			return results, failures, err
		}

		obs.Status(fmt.Sprintf("Searching for: %s", kw))
		a.logger.Info("[aggregator] (%d/%d) searching %q", i+1, total, kw)

		req := a.template
		req.Keyword = kw

		start := time.Now()
		items, err := a.searcher.Search(ctx, req)
		a.pacer.Done()
		a.metrics.SearchLatencySec.Observe(time.Since(start).Seconds())

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return results, failures, ctx.Err()
			}
			a.metrics.Searches.WithLabelValues(metrics.OutcomeFailed).Inc()
			a.logger.Warn("[aggregator] %q failed, continuing with next keyword: %v", kw, err)
			failures = append(failures, models.KeywordError{Keyword: kw, Err: err})
			obs.Warn(kw, err)

		case len(items) == 0:
			a.metrics.Searches.WithLabelValues(metrics.OutcomeEmpty).Inc()
			a.logger.Warn("[aggregator] %q returned no items", kw)

		default:
			a.metrics.Searches.WithLabelValues(metrics.OutcomeOK).Inc()
			records, skipped := a.extractor.ExtractAll(items, kw)
			a.metrics.ItemsExtracted.Add(float64(len(records)))
			a.metrics.ItemsSkipped.Add(float64(skipped))
			results = append(results, records...)
			a.logger.Info("[aggregator] %q: %d items, %d usable, %d collected so far",
				kw, len(items), len(records), len(results))
		}

		obs.Progress(i+1, total)
	}

	return results, failures, nil
}

// CleanKeywords trims every keyword and drops blank entries, keeping order.
func CleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// SplitKeywords splits free text on newlines and commas into keywords.
func SplitKeywords(text string) []string {
	return CleanKeywords(strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	}))
}
