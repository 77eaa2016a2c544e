package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopee-research/metrics"
	"shopee-research/models"
	"shopee-research/scraper/shopee"
)

// newShopeeStub serves canned search responses keyed by keyword. A keyword
// mapped to "" hangs until the client gives up.
func newShopeeStub(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Query().Get("keyword")]
		if !ok {
			_, _ = io.WriteString(w, `{"items":[]}`)
			return
		}
		if body == "" {
			<-r.Context().Done()
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestPipeline(t *testing.T, srv *httptest.Server) *Pipeline {
	t.Helper()
	logger := newTestLogger()
	client, err := shopee.New(shopee.Options{
		Endpoint:    srv.URL + "/api/v4/search/search_items",
		SiteURL:     srv.URL,
		Timeout:     100 * time.Millisecond,
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
	}, logger)
	require.NoError(t, err)

	m := metrics.NewRegistry()
	agg := NewAggregator(client, NewExtractor(logger, "https://shopee.com.my", LinkSlug, 100),
		models.SearchRequest{Limit: 50}, 0, logger, m)
	return NewPipeline(agg, NewRanker(logger), NewSummaryService(logger), logger, m)
}

func scenarioFilter() models.Filter {
	f := baseFilter()
	f.MinPrice, f.MaxPrice, f.MinRating = 5, 50, 4.0
	return f
}

func TestPipelineSingleQualifyingProduct(t *testing.T) {
	srv := newShopeeStub(t, map[string]string{
		"widget": `{"items":[{"item_basic":{"name":"Widget","price":1000000,"item_rating":{"rating_star":4.8},"stock":100,"historical_sold":60,"shopid":1,"itemid":2}}]}`,
	})

	res, err := newTestPipeline(t, srv).Run(context.Background(), Query{Keywords: []string{"widget"}, Filter: scenarioFilter()}, nil)
	require.NoError(t, err)
	require.False(t, res.Empty())
	require.Len(t, res.Products, 1)
	assert.Equal(t, 10.0, res.Products[0].Price)
	assert.Equal(t, "https://shopee.com.my/Widget-i.1.2", res.Products[0].URL)
	assert.Equal(t, 1, res.Summary.TotalProducts)
}

func TestPipelineRatingBelowMinimumIsEmpty(t *testing.T) {
	srv := newShopeeStub(t, map[string]string{
		"widget": `{"items":[{"item_basic":{"name":"Widget","price":1000000,"item_rating":{"rating_star":3.0},"stock":100}}]}`,
	})

	f := scenarioFilter()
	f.MinRating = 4.5
	obs := &recordingObserver{}
	res, err := newTestPipeline(t, srv).Run(context.Background(), Query{Keywords: []string{"widget"}, Filter: f}, obs)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, 1, res.Collected)
	assert.Empty(t, res.Failures)
	assert.Equal(t, "No products found within the specified filters.", obs.statuses[len(obs.statuses)-1])
}

func TestPipelineTimeoutDoesNotStopLaterKeywords(t *testing.T) {
	srv := newShopeeStub(t, map[string]string{
		"x": "",
		"y": `{"items":[{"item_basic":{"name":"Y product","price":2000000,"item_rating":{"rating_star":4.9},"stock":80}}]}`,
	})

	res, err := newTestPipeline(t, srv).Run(context.Background(), Query{Keywords: []string{"x", "y"}, Filter: scenarioFilter()}, nil)
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "x", res.Failures[0].Keyword)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "y", res.Products[0].Keyword)
}

func TestPipelineRanksAcrossKeywords(t *testing.T) {
	srv := newShopeeStub(t, map[string]string{
		"first":  `{"items":[{"item_basic":{"name":"Five","price":1000000,"historical_sold":75,"item_rating":{"rating_star":4.5},"stock":100}}]}`,
		"second": `{"items":[{"item_basic":{"name":"Twelve","price":1000000,"historical_sold":180,"item_rating":{"rating_star":4.5},"stock":100}}]}`,
	})

	res, err := newTestPipeline(t, srv).Run(context.Background(), Query{Keywords: []string{"first", "second"}, Filter: scenarioFilter()}, nil)
	require.NoError(t, err)
	require.Len(t, res.Products, 2)
	assert.Equal(t, "Twelve", res.Products[0].Name)
	assert.InDelta(t, 12.0, res.Products[0].EstimatedRevenue, 1e-9)
	assert.InDelta(t, 5.0, res.Products[1].EstimatedRevenue, 1e-9)
}

func TestPipelineNilMetrics(t *testing.T) {
	logger := newTestLogger()
	s := &fakeSearcher{responses: map[string][]models.RawListing{"a": {listing("a1", 1000000)}}}
	agg := NewAggregator(s, newTestExtractor(LinkSlug), models.SearchRequest{}, 0, logger, nil)
	p := NewPipeline(agg, NewRanker(logger), NewSummaryService(logger), logger, nil)

	f := scenarioFilter()
	f.CheckStock = false
	f.MinRating = 0
	res, err := p.Run(context.Background(), Query{Keywords: []string{"a"}, Filter: f}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Products, 1)
}
