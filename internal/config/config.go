// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/yjing-lab/pulsegraph/internal/timestep"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Storage
	DataDir     string // Day-shard directory for the CSV corpus
	DatabaseURL string // PostgreSQL connection string (optional, uses CSV shards if not set)

	// Time-step anchor
	BaseTime time.Time
	MaxStep  int

	// Risk analysis
	RiskThreshold    float64 // fraud probability above which an edge is risky
	AmountPercentile float64 // percentile for the cached amount baseline

	// Scoring constants
	ScoreBase     float64
	ScorePDO      float64
	WeightProb    float64
	WeightAmount  float64
	WeightLogOdds float64

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint (optional, traces are no-ops if not set)
}

const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"
	DefaultDataDir  = "data"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	baseTime, err := getEnvTime("BASE_TIME", timestep.DefaultBaseTime)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DataDir:          getEnv("DATA_DIR", DefaultDataDir),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, CSV shards if not set
		BaseTime:         baseTime,
		MaxStep:          int(getEnvInt64("MAX_STEP", timestep.DefaultMaxStep)),
		RiskThreshold:    getEnvFloat("RISK_THRESHOLD", 0.5),
		AmountPercentile: getEnvFloat("AMOUNT_PERCENTILE", 95),
		ScoreBase:        getEnvFloat("SCORE_BASE", 600),
		ScorePDO:         getEnvFloat("SCORE_PDO", 20),
		WeightProb:       getEnvFloat("RI_WEIGHT_PROB", 0.6),
		WeightAmount:     getEnvFloat("RI_WEIGHT_AMOUNT", 0.3),
		WeightLogOdds:    getEnvFloat("RI_WEIGHT_LOGODDS", 0.1),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.DataDir == "" && c.DatabaseURL == "" {
		return fmt.Errorf("DATA_DIR or DATABASE_URL is required")
	}
	if c.RiskThreshold <= 0 || c.RiskThreshold >= 1 {
		return fmt.Errorf("RISK_THRESHOLD must be in (0, 1), got %v", c.RiskThreshold)
	}
	if c.AmountPercentile <= 0 || c.AmountPercentile > 100 {
		return fmt.Errorf("AMOUNT_PERCENTILE must be in (0, 100], got %v", c.AmountPercentile)
	}
	if c.ScoreBase <= 0 || c.ScorePDO <= 0 {
		return fmt.Errorf("SCORE_BASE and SCORE_PDO must be positive")
	}
	if c.MaxStep < 0 {
		return fmt.Errorf("MAX_STEP must be non-negative, got %d", c.MaxStep)
	}
	return nil
}

// TimeIndex returns the configured step anchor.
func (c *Config) TimeIndex() timestep.Index {
	return timestep.Index{BaseTime: c.BaseTime, MaxStep: c.MaxStep}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvTime(key string, defaultValue time.Time) (time.Time, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	t, err := time.ParseInLocation(timestep.Layout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must use the %q layout: %w", key, timestep.Layout, err)
	}
	return t, nil
}
