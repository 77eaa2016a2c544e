package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"shopee-research/models"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	SiteURL        string
	SearchEndpoint string
	SearchLimit    int
	SearchBy       string
	SearchOrder    string
	PageType       string
	Scenario       string
	APIVersion     int

	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	KeywordDelayMs int

	UserAgents      []string
	RotateUserAgent bool
	AcceptLanguage  string
	Referer         string
	Cookie          string
	Warmup          string // none | http | browser
	ChromeBin       string

	MinPrice       float64
	MaxPrice       float64
	MinRating      float64
	StockFilter    bool
	StockThreshold int
	SalesFraming   string
	CommissionRate float64
	RankBy         string
	LinkStyle      string
	NameMaxLen     int

	OutputDir  string
	FilePrefix string

	PostgresExport   bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	SQLitePath       string

	ListenAddr   string
	AllowOrigins string
	LogLevel     string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		SiteURL:        getEnv("SHOPEE_SITE_URL", "https://shopee.com.my"),
		SearchEndpoint: getEnv("SHOPEE_SEARCH_ENDPOINT", "https://shopee.com.my/api/v4/search/search_items"),
		SearchLimit:    getEnvInt("SEARCH_LIMIT", 50),
		SearchBy:       getEnv("SEARCH_BY", "relevancy"),
		SearchOrder:    getEnv("SEARCH_ORDER", "desc"),
		PageType:       getEnv("SEARCH_PAGE_TYPE", "search"),
		Scenario:       getEnv("SEARCH_SCENARIO", "PAGE_GLOBAL_SEARCH"),
		APIVersion:     getEnvInt("SEARCH_VERSION", 2),

		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryDelay:     getEnvDuration("RETRY_DELAY", 2*time.Second),
		KeywordDelayMs: getEnvInt("KEYWORD_DELAY_MS", 1000),

		UserAgents:      getEnvList("USER_AGENTS", DefaultUserAgents()),
		RotateUserAgent: getEnvBool("ROTATE_USER_AGENT", true),
		AcceptLanguage:  getEnv("ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
		Referer:         getEnv("REFERER", "https://shopee.com.my/"),
		Cookie:          getEnv("SHOPEE_COOKIE", ""),
		Warmup:          getEnv("WARMUP", "http"),
		ChromeBin:       getEnv("CHROME_BIN", ""),

		MinPrice:       getEnvFloat("MIN_PRICE", 50),
		MaxPrice:       getEnvFloat("MAX_PRICE", 200),
		MinRating:      getEnvFloat("MIN_RATING", 4.5),
		StockFilter:    getEnvBool("STOCK_FILTER", true),
		StockThreshold: getEnvInt("STOCK_THRESHOLD", models.DefaultStockThreshold),
		SalesFraming:   getEnv("SALES_FRAMING", string(models.FramingDaily)),
		CommissionRate: getEnvFloat("COMMISSION_RATE", models.DefaultCommissionRate),
		RankBy:         getEnv("RANK_BY", string(models.RankByPotential)),
		LinkStyle:      getEnv("LINK_STYLE", "slug"),
		NameMaxLen:     getEnvInt("NAME_MAX_LEN", 100),

		OutputDir:  getEnv("OUTPUT_DIR", "./output"),
		FilePrefix: getEnv("FILE_PREFIX", "shopee_research"),

		PostgresExport:   getEnvBool("POSTGRES_EXPORT", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "research"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "research123"),
		PostgresDB:       getEnv("POSTGRES_DB", "research_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		SQLitePath:       getEnv("SQLITE_PATH", ""),

		ListenAddr:   getEnv("LISTEN_ADDR", ":8080"),
		AllowOrigins: getEnv("ALLOW_ORIGINS", "http://localhost:3000,http://localhost:8501"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.SearchEndpoint == "" {
		return fmt.Errorf("SHOPEE_SEARCH_ENDPOINT is required")
	}
	if c.SearchLimit < 1 {
		return fmt.Errorf("SEARCH_LIMIT must be at least 1")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if c.KeywordDelayMs < 0 {
		return fmt.Errorf("KEYWORD_DELAY_MS cannot be negative")
	}
	if c.MinPrice > c.MaxPrice {
		return fmt.Errorf("MIN_PRICE cannot be greater than MAX_PRICE")
	}
	if c.MinRating < 0 || c.MinRating > 5 {
		return fmt.Errorf("MIN_RATING must be within 0-5")
	}
	if c.NameMaxLen < 1 {
		return fmt.Errorf("NAME_MAX_LEN must be at least 1")
	}
	switch models.Framing(c.SalesFraming) {
	case models.FramingDaily, models.FramingMonthly:
	default:
		return fmt.Errorf("SALES_FRAMING must be daily or monthly, got %q", c.SalesFraming)
	}
	switch models.RankKey(c.RankBy) {
	case models.RankByPotential, models.RankBySales:
	default:
		return fmt.Errorf("RANK_BY must be potential or sales, got %q", c.RankBy)
	}
	switch c.LinkStyle {
	case "slug", "product":
	default:
		return fmt.Errorf("LINK_STYLE must be slug or product, got %q", c.LinkStyle)
	}
	switch c.Warmup {
	case "none", "http", "browser":
	default:
		return fmt.Errorf("WARMUP must be none, http or browser, got %q", c.Warmup)
	}
	return nil
}

// Filter builds the ranking filter from the configured defaults.
func (c *Config) Filter() models.Filter {
	return models.Filter{
		MinPrice:       c.MinPrice,
		MaxPrice:       c.MaxPrice,
		MinRating:      c.MinRating,
		CheckStock:     c.StockFilter,
		StockThreshold: int64(c.StockThreshold),
		Framing:        models.Framing(c.SalesFraming),
		CommissionRate: c.CommissionRate,
		RankBy:         models.RankKey(c.RankBy),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// DefaultUserAgents is the rotation pool used when USER_AGENTS is unset.
func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
