package models

import (
	"strings"
	"time"
)

// RawListing is one unprocessed entry of the search API "items" array.
// Its shape is not guaranteed by the provider, so every field is read
// through Lookup.
type RawListing map[string]any

// Lookup walks a nested key path. Any missing segment, or a segment that
// is not an object, yields (nil, false).
func (r RawListing) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(r)
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// LookupString returns the value at path as text, or fallback when it is
// absent or not a string.
func (r RawListing) LookupString(fallback string, path ...string) string {
	v, ok := r.Lookup(path...)
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

// ProductRecord is the normalised, flat view of one listing.
type ProductRecord struct {
	Keyword      string
	Name         string
	Price        float64
	Sales        int64
	Rating       float64
	Stock        int64
	ShopLocation string
	ShopName     string
	ShopID       string
	ItemID       string
	URL          string

	// Derived by the ranker; zero until then.
	SalesRate        float64
	Commission       float64
	EstimatedRevenue float64
}

// SearchRequest carries the per-keyword query parameters passed verbatim
// to the search endpoint.
type SearchRequest struct {
	Keyword  string
	Limit    int
	By       string
	Order    string
	PageType string
	Scenario string
	Version  int
}

// Valid reports whether the request has a non-blank keyword.
func (r SearchRequest) Valid() bool {
	return strings.TrimSpace(r.Keyword) != ""
}

// ResultSet is an ordered list of records. A new search replaces it.
type ResultSet []ProductRecord

// Framing selects how historical sales are turned into a sales rate.
type Framing string

const (
	FramingDaily   Framing = "daily"
	FramingMonthly Framing = "monthly"
)

const (
	// DailyDivisor treats historical_sold as roughly one month of sales.
	DailyDivisor = 30.0
	// MonthlyDivisor treats historical_sold as roughly one quarter of sales.
	MonthlyDivisor = 3.0

	DefaultCommissionRate = 0.20
	DefaultStockThreshold = 50
)

// Divisor returns the sales divisor for the framing. Unknown framings fall
// back to daily.
func (f Framing) Divisor() float64 {
	if f == FramingMonthly {
		return MonthlyDivisor
	}
	return DailyDivisor
}

// Columns returns the displayed names of the sales rate, commission and
// revenue columns.
func (f Framing) Columns() (rate, commission, revenue string) {
	if f == FramingMonthly {
		return "monthly_sales", "commission", "estimated_revenue"
	}
	return "daily_sales", "potential_commission", "daily_potential"
}

// RankKey selects the descending sort key.
type RankKey string

const (
	RankByPotential RankKey = "potential"
	RankBySales     RankKey = "sales"
)

// Filter holds the numeric predicates and metric settings for ranking.
type Filter struct {
	MinPrice       float64
	MaxPrice       float64
	MinRating      float64
	CheckStock     bool
	StockThreshold int64

	Framing        Framing
	CommissionRate float64
	RankBy         RankKey
}

// KeywordError records a keyword that contributed no records because its
// search failed.
type KeywordError struct {
	Keyword string
	Err     error
}

func (e KeywordError) Error() string {
	return e.Keyword + ": " + e.Err.Error()
}

func (e KeywordError) Unwrap() error { return e.Err }

// Summary holds the headline figures over a ranked ResultSet.
type Summary struct {
	TotalProducts     int
	ProductsByKeyword map[string]int
	AveragePrice      float64
	MinPrice          float64
	MaxPrice          float64
	TotalRevenue      float64
	BestProduct       *ProductRecord
	TopRated          []ProductRecord
	Framing           Framing
	GeneratedAt       time.Time
}
