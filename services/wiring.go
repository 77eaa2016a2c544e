package services

import (
	"fmt"

	"shopee-research/config"
	"shopee-research/metrics"
	"shopee-research/models"
	"shopee-research/scraper/shopee"
	"shopee-research/utils"
)

// SearchTemplate returns the per-keyword request defaults from cfg.
func SearchTemplate(cfg *config.Config) models.SearchRequest {
	return models.SearchRequest{
		Limit:    cfg.SearchLimit,
		By:       cfg.SearchBy,
		Order:    cfg.SearchOrder,
		PageType: cfg.PageType,
		Scenario: cfg.Scenario,
		Version:  cfg.APIVersion,
	}
}

// NewPipelineFromConfig builds the search client and every stage from cfg.
func NewPipelineFromConfig(cfg *config.Config, logger *utils.Logger, m *metrics.Registry) (*Pipeline, error) {
	client, err := shopee.New(shopee.OptionsFromConfig(cfg, logger), logger)
	if err != nil {
		return nil, fmt.Errorf("services: search client: %w", err)
	}

	extractor := NewExtractor(logger, cfg.SiteURL, LinkStyle(cfg.LinkStyle), cfg.NameMaxLen)
	aggregator := NewAggregator(client, extractor, SearchTemplate(cfg), cfg.KeywordDelayMs, logger, m)

	return NewPipeline(aggregator, NewRanker(logger), NewSummaryService(logger), logger, m), nil
}
