package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yjing-lab/pulsegraph/internal/timestep"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATA_DIR", "DATABASE_URL",
		"BASE_TIME", "MAX_STEP", "RISK_THRESHOLD", "AMOUNT_PERCENTILE",
	} {
		setEnv(t, key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.True(t, cfg.BaseTime.Equal(timestep.DefaultBaseTime))
	assert.Equal(t, timestep.DefaultMaxStep, cfg.MaxStep)
	assert.Equal(t, 0.5, cfg.RiskThreshold)
	assert.Equal(t, 95.0, cfg.AmountPercentile)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "DATA_DIR", "/var/pulsegraph/shards")
	setEnv(t, "BASE_TIME", "2025-01-01 00:00:00")
	setEnv(t, "MAX_STEP", "100")
	setEnv(t, "RISK_THRESHOLD", "0.7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/var/pulsegraph/shards", cfg.DataDir)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), cfg.BaseTime)
	assert.Equal(t, 100, cfg.MaxStep)
	assert.Equal(t, 0.7, cfg.RiskThreshold)
}

func TestLoad_BadBaseTime(t *testing.T) {
	setEnv(t, "BASE_TIME", "16/10/2025 19:00")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "BASE_TIME")
	assert.Contains(t, err.Error(), timestep.Layout)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			DataDir:          "data",
			RiskThreshold:    0.5,
			AmountPercentile: 95,
			ScoreBase:        600,
			ScorePDO:         20,
			MaxStep:          744,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name: "no storage configured",
			mutate: func(c *Config) {
				c.DataDir = ""
				c.DatabaseURL = ""
			},
			wantErr: "DATA_DIR or DATABASE_URL is required",
		},
		{
			name: "database url alone is enough",
			mutate: func(c *Config) {
				c.DataDir = ""
				c.DatabaseURL = "postgres://localhost/pulsegraph"
			},
			wantErr: "",
		},
		{
			name:    "risk threshold at zero",
			mutate:  func(c *Config) { c.RiskThreshold = 0 },
			wantErr: "RISK_THRESHOLD must be in (0, 1)",
		},
		{
			name:    "risk threshold at one",
			mutate:  func(c *Config) { c.RiskThreshold = 1 },
			wantErr: "RISK_THRESHOLD must be in (0, 1)",
		},
		{
			name:    "percentile above 100",
			mutate:  func(c *Config) { c.AmountPercentile = 101 },
			wantErr: "AMOUNT_PERCENTILE must be in (0, 100]",
		},
		{
			name:    "percentile at 100 is allowed",
			mutate:  func(c *Config) { c.AmountPercentile = 100 },
			wantErr: "",
		},
		{
			name:    "non-positive base score",
			mutate:  func(c *Config) { c.ScoreBase = 0 },
			wantErr: "SCORE_BASE and SCORE_PDO must be positive",
		},
		{
			name:    "non-positive pdo",
			mutate:  func(c *Config) { c.ScorePDO = -5 },
			wantErr: "SCORE_BASE and SCORE_PDO must be positive",
		},
		{
			name:    "negative max step",
			mutate:  func(c *Config) { c.MaxStep = -1 },
			wantErr: "MAX_STEP must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_TimeIndex(t *testing.T) {
	base := time.Date(2025, 10, 16, 19, 0, 0, 0, time.UTC)
	cfg := &Config{BaseTime: base, MaxStep: 744}

	idx := cfg.TimeIndex()
	assert.True(t, idx.BaseTime.Equal(base))
	assert.Equal(t, 744, idx.MaxStep)
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvFloat(t *testing.T) {
	setEnv(t, "TEST_FLOAT", "0.75")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, 0.75, getEnvFloat("TEST_FLOAT", 0))
	assert.Equal(t, 0.5, getEnvFloat("NONEXISTENT_VAR", 0.5))
	assert.Equal(t, 0.5, getEnvFloat("TEST_INVALID", 0.5))
}

func TestGetEnvTime(t *testing.T) {
	setEnv(t, "TEST_TIME", "2025-10-16 19:00:00")

	got, err := getEnvTime("TEST_TIME", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 16, 19, 0, 0, 0, time.UTC), got)

	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err = getEnvTime("NONEXISTENT_VAR", fallback)
	require.NoError(t, err)
	assert.True(t, got.Equal(fallback))
}
