package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"shopee-research/models"
	"shopee-research/utils"
)

type SummaryService struct {
	logger *utils.Logger
}

func NewSummaryService(logger *utils.Logger) *SummaryService {
	return &SummaryService{logger: logger}
}

func (s *SummaryService) Generate(rs models.ResultSet, framing models.Framing) *models.Summary {
	summary := &models.Summary{
		ProductsByKeyword: make(map[string]int),
		Framing:           framing,
		GeneratedAt:       time.Now(),
	}

	if len(rs) == 0 {
		return summary
	}

	summary.TotalProducts = len(rs)
	summary.MinPrice = rs[0].Price
	summary.MaxPrice = rs[0].Price

	var total float64
	best := 0
	for i, p := range rs {
		total += p.Price
		summary.TotalRevenue += p.EstimatedRevenue
		if p.Price < summary.MinPrice {
			summary.MinPrice = p.Price
		}
		if p.Price > summary.MaxPrice {
			summary.MaxPrice = p.Price
		}
		if p.EstimatedRevenue > rs[best].EstimatedRevenue {
			best = i
		}
		if p.Keyword != "" {
			summary.ProductsByKeyword[p.Keyword]++
		}
	}
	bestProduct := rs[best]
	summary.BestProduct = &bestProduct

	summary.AveragePrice = round2(total / float64(len(rs)))
	summary.MinPrice = round2(summary.MinPrice)
	summary.MaxPrice = round2(summary.MaxPrice)
	summary.TotalRevenue = round2(summary.TotalRevenue)

	// Top 5 by rating
	rated := make([]models.ProductRecord, len(rs))
	copy(rated, rs)
	sort.SliceStable(rated, func(i, j int) bool {
		return rated[i].Rating > rated[j].Rating
	})
	if len(rated) > 5 {
		rated = rated[:5]
	}
	summary.TopRated = rated

	return summary
}

func (s *SummaryService) Print(r *models.Summary) {
	sep := strings.Repeat("═", 60)
	thin := strings.Repeat("─", 60)
	_, _, revenueCol := r.Framing.Columns()

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 SHOPEE PRODUCT RESEARCH\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	if r.TotalProducts == 0 {
		fmt.Printf("  No products found within the specified filters.\n")
		fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
		return
	}

	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Products found        : \033[1m%d\033[0m\n", r.TotalProducts)
	fmt.Printf("  Average price         : \033[1;32mRM %.2f\033[0m\n", r.AveragePrice)
	fmt.Printf("  Price range           : \033[1;32mRM %.2f - RM %.2f\033[0m\n", r.MinPrice, r.MaxPrice)
	fmt.Printf("  Total %-15s : \033[1;32mRM %.2f\033[0m\n", revenueCol, r.TotalRevenue)
	fmt.Println()

	if r.BestProduct != nil {
		fmt.Printf("\033[1;33m  Best Opportunity\033[0m\n")
		fmt.Printf("  %s\n", thin)
		fmt.Printf("  %s\n", truncate(r.BestProduct.Name, 56))
		fmt.Printf("  Price    : RM %.2f | Sold: %d | Rating: %.1f\n",
			r.BestProduct.Price, r.BestProduct.Sales, r.BestProduct.Rating)
		fmt.Printf("  %-8s : \033[1;31mRM %.2f\033[0m\n", "Potential", r.BestProduct.EstimatedRevenue)
		fmt.Printf("  Link     : %s\n", r.BestProduct.URL)
		fmt.Println()
	}

	fmt.Printf("\033[1;33m  Top Rated\033[0m\n")
	fmt.Printf("  %s\n", thin)
	for i, p := range r.TopRated {
		fmt.Printf("  \033[1m%d.\033[0m %-44s \033[1;32m%.2f ★\033[0m\n",
			i+1, truncate(p.Name, 42), p.Rating)
	}
	fmt.Println()

	if len(r.ProductsByKeyword) > 0 {
		fmt.Printf("\033[1;33m  Products by Keyword\033[0m\n")
		fmt.Printf("  %s\n", thin)
		type kwCount struct {
			kw    string
			count int
		}
		var kws []kwCount
		for kw, cnt := range r.ProductsByKeyword {
			kws = append(kws, kwCount{kw, cnt})
		}
		sort.Slice(kws, func(i, j int) bool {
			if kws[i].count != kws[j].count {
				return kws[i].count > kws[j].count
			}
			return kws[i].kw < kws[j].kw
		})
		for _, kc := range kws {
			bar := strings.Repeat("█", min(kc.count, 40))
			fmt.Printf("  %-30s %s (%d)\n", truncate(kc.kw, 28), bar, kc.count)
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// PrintTable renders the first limit ranked products; limit <= 0 prints all.
func (s *SummaryService) PrintTable(rs models.ResultSet, framing models.Framing, limit int) {
	if len(rs) == 0 {
		return
	}
	rows := rs
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	rateCol, _, revenueCol := framing.Columns()

	fmt.Printf("\n\033[1;36m  %-3s %-40s %9s %8s %6s %12s %14s\033[0m\n",
		"#", "Product", "Price", "Sold", "Rating", rateCol, revenueCol)
	fmt.Printf("  %s\n", strings.Repeat("─", 98))
	for i, p := range rows {
		fmt.Printf("  %-3d %-40s %9.2f %8d %6.1f %12.2f \033[1;32m%14.2f\033[0m\n",
			i+1, truncate(p.Name, 40), p.Price, p.Sales, p.Rating, p.SalesRate, p.EstimatedRevenue)
	}
	if len(rows) < len(rs) {
		fmt.Printf("  ... %d more in the export\n", len(rs)-len(rows))
	}
}
