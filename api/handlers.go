package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"shopee-research/models"
	"shopee-research/services"
	"shopee-research/storage"
	"shopee-research/utils"
)

// Runner executes one research pass.
type Runner interface {
	Run(ctx context.Context, q services.Query, obs services.Observer) (*services.Result, error)
}

type Handlers struct {
	runner     Runner
	defaults   models.Filter
	filePrefix string
	sinks      []storage.ResultWriter
	logger     *utils.Logger
	now        func() time.Time
}

// NewHandlers creates the HTTP handlers. defaults fills every filter field
// a request leaves out; every sink receives each non-failed run.
func NewHandlers(runner Runner, defaults models.Filter, filePrefix string, sinks []storage.ResultWriter, logger *utils.Logger) *Handlers {
	return &Handlers{
		runner:     runner,
		defaults:   defaults,
		filePrefix: filePrefix,
		sinks:      sinks,
		logger:     logger,
		now:        time.Now,
	}
}

// SearchRequest is the body of both search endpoints. Keywords may be
// given as a list, as free text separated by newlines or commas, or both.
type SearchRequest struct {
	Keywords       []string `json:"keywords"`
	KeywordText    string   `json:"keyword_text"`
	MinPrice       *float64 `json:"min_price"`
	MaxPrice       *float64 `json:"max_price"`
	MinRating      *float64 `json:"min_rating"`
	CheckStock     *bool    `json:"check_stock"`
	StockThreshold *int64   `json:"stock_threshold"`
	Framing        string   `json:"framing"`
	RankBy         string   `json:"rank_by"`
}

// SearchResponse is the JSON form of one run.
type SearchResponse struct {
	RunID    string          `json:"run_id"`
	Status   string          `json:"status"`
	Empty    bool            `json:"empty"`
	Warnings []string        `json:"warnings"`
	Products []Product       `json:"products"`
	Summary  *SummaryPayload `json:"summary,omitempty"`
}

type Product struct {
	Keyword          string  `json:"keyword"`
	Name             string  `json:"name"`
	Price            float64 `json:"price"`
	Sales            int64   `json:"sales"`
	Rating           float64 `json:"rating"`
	Stock            int64   `json:"stock"`
	ShopLocation     string  `json:"shop_location"`
	ShopName         string  `json:"shop_name"`
	URL              string  `json:"product_url"`
	SalesRate        float64 `json:"sales_rate"`
	Commission       float64 `json:"commission"`
	EstimatedRevenue float64 `json:"estimated_revenue"`
}

// SummaryPayload mirrors models.Summary for the metric cards.
type SummaryPayload struct {
	TotalProducts     int            `json:"total_products"`
	ProductsByKeyword map[string]int `json:"products_by_keyword"`
	AveragePrice      float64        `json:"average_price"`
	MinPrice          float64        `json:"min_price"`
	MaxPrice          float64        `json:"max_price"`
	TotalRevenue      float64        `json:"total_revenue"`
	BestProduct       *Product       `json:"best_product,omitempty"`
	TopRated          []Product      `json:"top_rated"`
	Framing           string         `json:"framing"`
}

// Search runs the pipeline and returns ranked products with the summary.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	runID, res, obs, ok := h.run(w, r)
	if !ok {
		return
	}

	resp := SearchResponse{
		RunID:    runID,
		Status:   obs.status,
		Empty:    res.Empty(),
		Warnings: obs.warnings,
		Products: toProducts(res.Products),
		Summary:  toSummary(res.Summary),
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Export runs the pipeline and streams the ranked products as a CSV
// attachment. An empty result yields 204 and no file.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	_, res, _, ok := h.run(w, r)
	if !ok {
		return
	}

	framing := models.FramingDaily
	if res.Summary != nil {
		framing = res.Summary.Framing
	}
	data, err := storage.EncodeCSV(res.Products, framing)
	if errors.Is(err, storage.ErrEmptyResult) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.Error("[api] encode csv: %v", err)
		h.respondError(w, http.StatusInternalServerError, "failed to encode csv")
		return
	}

	name := storage.CSVFileName(h.filePrefix, res.Keywords, h.now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("[api] write csv: %v", err)
	}
}

// Healthz reports liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// run decodes and validates the body, executes the pipeline and hands the
// result to the configured sinks. ok is false once an error response has
// been written.
func (h *Handlers) run(w http.ResponseWriter, r *http.Request) (string, *services.Result, *collectingObserver, bool) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return "", nil, nil, false
	}

	query, err := h.buildQuery(req)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return "", nil, nil, false
	}

	runID := uuid.NewString()
	obs := &collectingObserver{logger: h.logger, runID: runID, warnings: []string{}}
	h.logger.Info("[api] run %s: %d keywords", runID, len(query.Keywords))

	res, err := h.runner.Run(r.Context(), query, obs)
	if err != nil {
		h.logger.Warn("[api] run %s interrupted: %v", runID, err)
		h.respondError(w, http.StatusServiceUnavailable, "search interrupted")
		return "", nil, nil, false
	}

	for _, sink := range h.sinks {
		if err := sink.Write(runID, res.Products); err != nil {
			h.logger.Error("[api] run %s export: %v", runID, err)
		}
	}
	return runID, res, obs, true
}

func (h *Handlers) buildQuery(req SearchRequest) (services.Query, error) {
	keywords := append([]string{}, req.Keywords...)
	keywords = append(keywords, services.SplitKeywords(req.KeywordText)...)
	keywords = services.CleanKeywords(keywords)
	if len(keywords) == 0 {
		return services.Query{}, errors.New("at least one keyword is required")
	}

	f := h.defaults
	if req.MinPrice != nil {
		f.MinPrice = *req.MinPrice
	}
	if req.MaxPrice != nil {
		f.MaxPrice = *req.MaxPrice
	}
	if req.MinRating != nil {
		f.MinRating = *req.MinRating
	}
	if req.CheckStock != nil {
		f.CheckStock = *req.CheckStock
	}
	if req.StockThreshold != nil {
		f.StockThreshold = *req.StockThreshold
	}

	if f.MinPrice > f.MaxPrice {
		return services.Query{}, errors.New("min_price cannot be greater than max_price")
	}
	if f.MinRating < 0 || f.MinRating > 5 {
		return services.Query{}, errors.New("min_rating must be within 0-5")
	}

	switch models.Framing(req.Framing) {
	case "":
	case models.FramingDaily, models.FramingMonthly:
		f.Framing = models.Framing(req.Framing)
	default:
		return services.Query{}, fmt.Errorf("unknown framing %q", req.Framing)
	}
	switch models.RankKey(req.RankBy) {
	case "":
	case models.RankByPotential, models.RankBySales:
		f.RankBy = models.RankKey(req.RankBy)
	default:
		return services.Query{}, fmt.Errorf("unknown rank_by %q", req.RankBy)
	}

	return services.Query{Keywords: keywords, Filter: f}, nil
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("[api] encode response: %v", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// collectingObserver keeps the last status line and the per-keyword
// warnings of one request.
type collectingObserver struct {
	logger   *utils.Logger
	runID    string
	status   string
	warnings []string
}

func (o *collectingObserver) Status(msg string) {
	o.status = msg
}

func (o *collectingObserver) Progress(done, total int) {
	o.logger.Debug("[api] run %s: %d/%d keywords", o.runID, done, total)
}

func (o *collectingObserver) Warn(keyword string, err error) {
	o.warnings = append(o.warnings, fmt.Sprintf("Could not search %q: %v", keyword, err))
}

func toProduct(p models.ProductRecord) Product {
	return Product{
		Keyword:          p.Keyword,
		Name:             p.Name,
		Price:            p.Price,
		Sales:            p.Sales,
		Rating:           p.Rating,
		Stock:            p.Stock,
		ShopLocation:     p.ShopLocation,
		ShopName:         p.ShopName,
		URL:              p.URL,
		SalesRate:        p.SalesRate,
		Commission:       p.Commission,
		EstimatedRevenue: p.EstimatedRevenue,
	}
}

func toProducts(rs models.ResultSet) []Product {
	out := make([]Product, 0, len(rs))
	for _, p := range rs {
		out = append(out, toProduct(p))
	}
	return out
}

func toSummary(s *models.Summary) *SummaryPayload {
	if s == nil {
		return nil
	}
	out := &SummaryPayload{
		TotalProducts:     s.TotalProducts,
		ProductsByKeyword: s.ProductsByKeyword,
		AveragePrice:      s.AveragePrice,
		MinPrice:          s.MinPrice,
		MaxPrice:          s.MaxPrice,
		TotalRevenue:      s.TotalRevenue,
		TopRated:          toProducts(s.TopRated),
		Framing:           string(s.Framing),
	}
	if s.BestProduct != nil {
		best := toProduct(*s.BestProduct)
		out.BestProduct = &best
	}
	return out
}
