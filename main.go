package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"shopee-research/config"
	"shopee-research/metrics"
	"shopee-research/services"
	"shopee-research/storage"
	"shopee-research/utils"
)

// logObserver reports pipeline progress through the logger.
type logObserver struct {
	logger *utils.Logger
}

func (o logObserver) Status(msg string) { o.logger.Info("%s", msg) }

func (o logObserver) Progress(done, total int) {
	o.logger.Info("Progress: %d/%d keywords (%d%%)", done, total, done*100/total)
}

func (o logObserver) Warn(keyword string, err error) {
	o.logger.Warn("Could not search %q: %v", keyword, err)
}

func main() {
	cfg := config.Load()

	keywordsFlag := flag.String("keywords", "", "keywords separated by commas or newlines")
	fileFlag := flag.String("file", "", "file with one keyword per line")
	minPrice := flag.Float64("min-price", cfg.MinPrice, "minimum price (RM)")
	maxPrice := flag.Float64("max-price", cfg.MaxPrice, "maximum price (RM)")
	minRating := flag.Float64("min-rating", cfg.MinRating, "minimum rating (0-5)")
	stock := flag.Bool("stock", cfg.StockFilter, "require stock above the threshold")
	framing := flag.String("framing", cfg.SalesFraming, "sales framing: daily or monthly")
	rankBy := flag.String("rank-by", cfg.RankBy, "ranking key: potential or sales")
	top := flag.Int("top", 20, "rows to print; 0 prints all")
	noExport := flag.Bool("no-export", false, "skip the CSV export")
	flag.Parse()

	cfg.MinPrice, cfg.MaxPrice, cfg.MinRating = *minPrice, *maxPrice, *minRating
	cfg.StockFilter, cfg.SalesFraming, cfg.RankBy = *stock, *framing, *rankBy

	logger := utils.NewLoggerWithLevel(utils.ParseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	keywords, err := collectKeywords(*keywordsFlag, *fileFlag, flag.Args())
	if err != nil {
		logger.Error("Failed to read keywords: %v", err)
		os.Exit(1)
	}
	if len(keywords) == 0 {
		logger.Error("No keywords given. Use -keywords, -file or positional arguments.")
		os.Exit(1)
	}

	logger.Info("=== Shopee Product Research starting ===")
	logger.Info("Config: keywords: %d | price: RM %.2f-%.2f | rating >= %.1f | stock filter: %t | framing: %s | rank: %s",
		len(keywords), cfg.MinPrice, cfg.MaxPrice, cfg.MinRating, cfg.StockFilter, cfg.SalesFraming, cfg.RankBy)

	sinks, err := openSinks(cfg, logger)
	if err != nil {
		logger.Error("Failed to open export sink: %v", err)
		os.Exit(1)
	}
	defer func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}()

	pipeline, err := services.NewPipelineFromConfig(cfg, logger, metrics.NewRegistry())
	if err != nil {
		logger.Error("Failed to build pipeline: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	filter := cfg.Filter()
	result, err := pipeline.Run(ctx, services.Query{Keywords: keywords, Filter: filter}, logObserver{logger: logger})
	if err != nil {
		logger.Warn("Search interrupted, showing partial results: %v", err)
	}

	logger.Info("Collected %d products, %d passed the filters, %d keywords failed",
		result.Collected, len(result.Products), len(result.Failures))

	summarySvc := services.NewSummaryService(logger)
	summarySvc.PrintTable(result.Products, filter.Framing, *top)
	summarySvc.Print(result.Summary)

	if result.Empty() {
		return
	}

	runID := uuid.NewString()
	for _, s := range sinks {
		if err := s.Write(runID, result.Products); err != nil {
			logger.Error("Export write failed: %v", err)
		}
	}

	if *noExport {
		return
	}
	csvWriter, err := storage.NewCSVWriter(cfg.OutputDir, cfg.FilePrefix)
	if err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
		os.Exit(1)
	}
	path, err := csvWriter.Export(result.Products, result.Keywords, filter.Framing)
	if err != nil {
		logger.Error("CSV export failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("  Done. %d products → %s\n\n", len(result.Products), path)
}

// collectKeywords merges keywords from the flag, the file and positional
// arguments, in that order.
func collectKeywords(text, file string, args []string) ([]string, error) {
	keywords := services.SplitKeywords(text)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		keywords = append(keywords, services.SplitKeywords(string(data))...)
	}
	keywords = append(keywords, args...)
	return services.CleanKeywords(keywords), nil
}

func openSinks(cfg *config.Config, logger *utils.Logger) ([]storage.ResultWriter, error) {
	var sinks []storage.ResultWriter

	if cfg.PostgresExport {
		pg, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Error("Make sure PostgreSQL is running: docker compose up -d")
			return nil, err
		}
		sinks = append(sinks, pg)
		logger.Info("Exporting to PostgreSQL (table: product_results)")
	}

	if path := strings.TrimSpace(cfg.SQLitePath); path != "" {
		lite, err := storage.NewSQLiteWriter(path)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, fmt.Errorf("sqlite %s: %w", path, err)
		}
		sinks = append(sinks, lite)
		logger.Info("Exporting to SQLite %s (table: product_results)", path)
	}

	return sinks, nil
}
