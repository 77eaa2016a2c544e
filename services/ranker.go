package services

import (
	"sort"
	"strconv"

	"shopee-research/models"
	"shopee-research/utils"
)

// Ranker filters records and orders them by estimated potential.
type Ranker struct {
	logger *utils.Logger
}

// NewRanker creates a Ranker with the given logger.
func NewRanker(logger *utils.Logger) *Ranker {
	return &Ranker{logger: logger}
}

// FilterAndRank returns a new ResultSet holding the records that pass f,
// with derived metrics filled in, sorted descending by f.RankBy. Ties keep
// their input order. The input slice is not modified.
func (r *Ranker) FilterAndRank(records models.ResultSet, f models.Filter) models.ResultSet {
	out := make(models.ResultSet, 0, len(records))
	for _, rec := range records {
		if !Matches(rec, f) {
			continue
		}
		out = append(out, WithMetrics(rec, f))
	}

	key := rankKey(f.RankBy)
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i]) > key(out[j])
	})

	r.logger.Info("[ranker] %d of %d products passed filters (price %.2f-%.2f, rating >= %.1f%s)",
		len(out), len(records), f.MinPrice, f.MaxPrice, f.MinRating, stockClause(f))
	return out
}

// Matches reports whether rec passes the numeric predicates of f.
func Matches(rec models.ProductRecord, f models.Filter) bool {
	if rec.Price < f.MinPrice || rec.Price > f.MaxPrice {
		return false
	}
	if rec.Rating < f.MinRating {
		return false
	}
	if f.CheckStock && rec.Stock <= f.StockThreshold {
		return false
	}
	return true
}

// WithMetrics returns rec with SalesRate, Commission and EstimatedRevenue
// computed from its normalised fields.
func WithMetrics(rec models.ProductRecord, f models.Filter) models.ProductRecord {
	rec.SalesRate = float64(rec.Sales) / f.Framing.Divisor()
	rec.Commission = rec.Price * f.CommissionRate
	rec.EstimatedRevenue = rec.SalesRate * rec.Commission
	return rec
}

func rankKey(k models.RankKey) func(models.ProductRecord) float64 {
	if k == models.RankBySales {
		return func(p models.ProductRecord) float64 { return float64(p.Sales) }
	}
	return func(p models.ProductRecord) float64 { return p.EstimatedRevenue }
}

func stockClause(f models.Filter) string {
	if !f.CheckStock {
		return ""
	}
	return ", stock > " + strconv.FormatInt(f.StockThreshold, 10)
}
