package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Pipeline
	Pipeline PipelineConfig

	// Model training / inference
	Model ModelConfig

	// API behavior
	API APIConfig

	// Ingestion
	Ingest IngestConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// PipelineConfig controls the daily feature pipeline.
type PipelineConfig struct {
	// Tickers is the instrument universe, comma separated in TICKERS.
	Tickers []string

	// FundStalenessDays caps how old a fundamental snapshot may be when
	// joined onto a trading day.
	FundStalenessDays int

	// MissingDropThreshold drops feature columns whose missing rate
	// exceeds it, before filling.
	MissingDropThreshold float64

	// CompositeWeights is the raw "name:weight,..." string; parsing and
	// the equal-weight fallback live next to the composite scorer.
	CompositeWeights string

	// SectorMapFile points to the yaml ticker->sector map. Empty or
	// missing file disables sector-relative valuation (z-score fallback).
	SectorMapFile string

	// LookbackDays extends the price load window before the requested
	// start so long-window indicators have warmup history.
	LookbackDays int

	// Workers bounds per-instrument feature computation concurrency.
	Workers int
}

// ModelConfig controls labeling, splitting, training and inference.
type ModelConfig struct {
	HorizonDays      int
	NSplits          int
	TestSize         float64
	EmbargoDays      int
	Seed             int64
	UncertaintyTrees int
	ArtifactDir      string
}

// APIConfig controls API-side signal ranking and caching.
type APIConfig struct {
	// RiskScoreWeight blends model score vs composite score when ranking
	// signals: w*base + (1-w)*composite.
	RiskScoreWeight  float64
	SignalTopDefault int
	CacheTTL         time.Duration
	RateLimitPerMin  int
}

// IngestConfig holds external data source settings.
type IngestConfig struct {
	PriceBaseURL    string
	ScreenerBaseURL string
	// NewsFeedURL is the scored-headline JSON feed; empty disables news
	// fetching in the scheduled ingest.
	NewsFeedURL string
	// PriceRatePerSec caps outbound price API requests.
	PriceRatePerSec float64
	PriceBurst      int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8086"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "augur"),
			User:            getEnv("DB_USER", "augur"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		Pipeline: PipelineConfig{
			Tickers:              getEnvAsList("TICKERS", nil),
			FundStalenessDays:    getEnvAsInt("FUND_STALENESS_DAYS", 120),
			MissingDropThreshold: getEnvAsFloat("MISSING_DROP_THRESHOLD", 0.8),
			CompositeWeights:     getEnv("COMPOSITE_WEIGHTS", "quality:0.25,valuation:0.25,momentum:0.25,sentiment:0.25"),
			SectorMapFile:        getEnv("SECTOR_MAP_FILE", ""),
			LookbackDays:         getEnvAsInt("FEATURE_LOOKBACK_DAYS", 400),
			Workers:              getEnvAsInt("FEATURE_WORKERS", 4),
		},

		Model: ModelConfig{
			HorizonDays:      getEnvAsInt("HORIZON_DAYS", 1),
			NSplits:          getEnvAsInt("N_SPLITS", 5),
			TestSize:         getEnvAsFloat("TEST_SIZE", 0.2),
			EmbargoDays:      getEnvAsInt("EMBARGO_DAYS", 2),
			Seed:             int64(getEnvAsInt("MODEL_SEED", 42)),
			UncertaintyTrees: getEnvAsInt("UNCERTAINTY_TREES", 50),
			ArtifactDir:      getEnv("ARTIFACT_DIR", "artifacts"),
		},

		API: APIConfig{
			RiskScoreWeight:  getEnvAsFloat("RISK_SCORE_WEIGHT", 0.7),
			SignalTopDefault: getEnvAsInt("SIGNAL_TOP_DEFAULT", 50),
			CacheTTL:         getEnvAsDuration("SIGNAL_CACHE_TTL", "60s"),
			RateLimitPerMin:  getEnvAsInt("API_RATE_LIMIT_PER_MIN", 120),
		},

		Ingest: IngestConfig{
			PriceBaseURL:    getEnv("PRICE_BASE_URL", "https://api.finance.example.com"),
			ScreenerBaseURL: getEnv("SCREENER_BASE_URL", "https://www.screener.in"),
			NewsFeedURL:     getEnv("NEWS_FEED_URL", ""),
			PriceRatePerSec: getEnvAsFloat("PRICE_RATE_PER_SEC", 5),
			PriceBurst:      getEnvAsInt("PRICE_BURST", 5),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Model.HorizonDays < 1 {
		return fmt.Errorf("HORIZON_DAYS must be >= 1, got %d", c.Model.HorizonDays)
	}

	if c.Model.NSplits < 1 {
		return fmt.Errorf("N_SPLITS must be >= 1, got %d", c.Model.NSplits)
	}

	if c.Model.TestSize <= 0 || c.Model.TestSize >= 1 {
		return fmt.Errorf("TEST_SIZE must be in (0, 1), got %v", c.Model.TestSize)
	}

	if c.Model.EmbargoDays < 0 {
		return fmt.Errorf("EMBARGO_DAYS must be >= 0, got %d", c.Model.EmbargoDays)
	}

	if c.Pipeline.MissingDropThreshold < 0 || c.Pipeline.MissingDropThreshold > 1 {
		return fmt.Errorf("MISSING_DROP_THRESHOLD must be in [0, 1], got %v", c.Pipeline.MissingDropThreshold)
	}

	if c.Pipeline.LookbackDays < 0 {
		return fmt.Errorf("FEATURE_LOOKBACK_DAYS must be >= 0, got %d", c.Pipeline.LookbackDays)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("FEATURE_WORKERS must be >= 1, got %d", c.Pipeline.Workers)
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
