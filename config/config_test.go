package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopee-research/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50, cfg.SearchLimit)
	assert.Equal(t, 1000, cfg.KeywordDelayMs)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "slug", cfg.LinkStyle)
	assert.True(t, cfg.StockFilter)
	assert.Equal(t, models.DefaultStockThreshold, cfg.StockThreshold)
	assert.Len(t, cfg.UserAgents, len(DefaultUserAgents()))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MIN_PRICE", "5")
	t.Setenv("MAX_PRICE", "50")
	t.Setenv("MIN_RATING", "4.0")
	t.Setenv("STOCK_FILTER", "false")
	t.Setenv("SALES_FRAMING", "monthly")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("USER_AGENTS", "ua-one | ua-two,with-comma")
	t.Setenv("SEARCH_LIMIT", "not-a-number")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	f := cfg.Filter()
	assert.Equal(t, 5.0, f.MinPrice)
	assert.Equal(t, 50.0, f.MaxPrice)
	assert.Equal(t, 4.0, f.MinRating)
	assert.False(t, f.CheckStock)
	assert.Equal(t, models.FramingMonthly, f.Framing)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"ua-one", "ua-two,with-comma"}, cfg.UserAgents)
	assert.Equal(t, 50, cfg.SearchLimit, "unparsable int falls back to default")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"price range inverted", func(c *Config) { c.MinPrice, c.MaxPrice = 100, 10 }},
		{"rating above five", func(c *Config) { c.MinRating = 6 }},
		{"unknown framing", func(c *Config) { c.SalesFraming = "weekly" }},
		{"unknown rank key", func(c *Config) { c.RankBy = "rating" }},
		{"unknown link style", func(c *Config) { c.LinkStyle = "short" }},
		{"unknown warmup", func(c *Config) { c.Warmup = "proxy" }},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"negative delay", func(c *Config) { c.KeywordDelayMs = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost: "db", PostgresPort: "5432", PostgresUser: "u",
		PostgresPassword: "p", PostgresDB: "d", PostgresSSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", cfg.DSN())
}
