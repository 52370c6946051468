package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
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

	// Panel source
	Data DataConfig

	// Backtest runtime
	Backtest BacktestConfig

	// HTTP API
	API APIConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Remote backtest host (optional)
	Remote RemoteConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DataConfig selects where the panel is loaded from
type DataConfig struct {
	Source        string // csv, postgres
	CSVPath       string
	PctChgPercent bool // pct_chg 컬럼이 % 단위인 경우
}

// BacktestConfig holds evaluator and batch settings
type BacktestConfig struct {
	PeriodsPerYear int
	RiskFreeRate   float64
	Workers        int
	ResultTTL      time.Duration
	OutputDir      string
}

// APIConfig holds HTTP API limits
type APIConfig struct {
	RateLimit      float64 // requests per second
	RateBurst      int
	RequestTimeout time.Duration
}

// SchedulerConfig holds nightly job settings
type SchedulerConfig struct {
	BatchFile   string
	BatchCron   string
	QualityCron string
}

// RemoteConfig points the CLI at another API instance
type RemoteConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Load reads configuration from the environment (and a .env file if found)
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: envString("PORT", "8089"),
		Env:  envString("ENV", "development"),

		Database: DatabaseConfig{
			URL:             envString("DATABASE_URL", ""),
			MaxConns:        envInt("DB_MAX_CONNS", 10),
			MinConns:        envInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: envDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: envDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
		},

		Redis: RedisConfig{
			Host:     envString("REDIS_HOST", "localhost"),
			Port:     envString("REDIS_PORT", "6379"),
			Password: envString("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
			Enabled:  envBool("REDIS_ENABLED", false),
		},

		Data: DataConfig{
			Source:        envString("DATA_SOURCE", "csv"),
			CSVPath:       envString("DATA_CSV_PATH", "data/cb_data.csv"),
			PctChgPercent: envBool("DATA_PCT_CHG_PERCENT", false),
		},

		Backtest: BacktestConfig{
			PeriodsPerYear: envInt("BACKTEST_PERIODS_PER_YEAR", 252),
			RiskFreeRate:   envFloat("BACKTEST_RISK_FREE_RATE", 0),
			Workers:        envInt("BACKTEST_WORKERS", 4),
			ResultTTL:      envDuration("BACKTEST_RESULT_TTL", 24*time.Hour),
			OutputDir:      envString("BACKTEST_OUTPUT_DIR", "result"),
		},

		API: APIConfig{
			RateLimit:      envFloat("API_RATE_LIMIT", 5),
			RateBurst:      envInt("API_RATE_BURST", 10),
			RequestTimeout: envDuration("API_REQUEST_TIMEOUT", 2*time.Minute),
		},

		Scheduler: SchedulerConfig{
			BatchFile:   envString("SCHEDULER_BATCH_FILE", "config/batch.yaml"),
			BatchCron:   envString("SCHEDULER_BATCH_CRON", "0 30 18 * * 1-5"),
			QualityCron: envString("SCHEDULER_QUALITY_CRON", "0 0 18 * * 1-5"),
		},

		Remote: RemoteConfig{
			BaseURL:    envString("REMOTE_BASE_URL", ""),
			Timeout:    envDuration("REMOTE_TIMEOUT", time.Minute),
			MaxRetries: envInt("REMOTE_MAX_RETRIES", 2),
		},

		LogLevel:  envString("LOG_LEVEL", "info"),
		LogFormat: envString("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate rejects settings no command can run with
func (c *Config) validate() error {
	switch c.Data.Source {
	case "csv":
		if c.Data.CSVPath == "" {
			return fmt.Errorf("DATA_CSV_PATH is required when DATA_SOURCE=csv")
		}
	case "postgres":
		// DATABASE_URL은 postgres 패널 소스일 때만 필수
		if !c.HasDatabase() {
			return fmt.Errorf("DATABASE_URL is required when DATA_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be one of: csv, postgres")
	}

	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.LogFormat {
	case "json", "console", "pretty":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of: json, console, pretty")
	}

	if c.Backtest.PeriodsPerYear <= 0 {
		return fmt.Errorf("BACKTEST_PERIODS_PER_YEAR must be > 0")
	}
	if c.Backtest.Workers <= 0 {
		return fmt.Errorf("BACKTEST_WORKERS must be > 0")
	}
	if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
		return fmt.Errorf("API_RATE_LIMIT and API_RATE_BURST must be >= 0")
	}

	return nil
}

// HasDatabase reports whether a database URL is configured
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// loadEnvFile loads the first .env found in the working directory or next to the binary.
// Variables already set in the environment win.
func loadEnvFile() {
	for _, path := range envFileCandidates() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func envFileCandidates() []string {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, ".env"), filepath.Join(dir, "..", ".env"))
	}
	return paths
}

// envOr parses key, falling back to def when unset, empty or malformed
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func envString(key, def string) string {
	return envOr(key, def, func(s string) (string, error) { return s, nil })
}

func envInt(key string, def int) int { return envOr(key, def, strconv.Atoi) }

func envBool(key string, def bool) bool { return envOr(key, def, strconv.ParseBool) }

func envDuration(key string, def time.Duration) time.Duration {
	return envOr(key, def, time.ParseDuration)
}

func envFloat(key string, def float64) float64 {
	return envOr(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}
