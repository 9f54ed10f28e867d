package config

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"

	"rerp/domain/window"
	"rerp/internal/errors"
)

// Config represents the complete engine configuration
type Config struct {
	Solver SolverConfig
	Fit    FitConfig
	Window WindowConfig
}

// SolverConfig holds decomposition settings
type SolverConfig struct {
	// Method selects the factorization, "svd" or "qr".
	Method string
	// ConditionLimit is the largest acceptable design condition number.
	ConditionLimit float64
}

// FitConfig holds worker pool settings
type FitConfig struct {
	Workers int
}

// WindowConfig holds window analysis settings
type WindowConfig struct {
	Correction string
	Alpha      float64
}

// Load reads configuration from environment variables and validates it.
// A .env file is picked up when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	conditionLimit, err := getEnvFloatOrDefault("RERP_CONDITION_LIMIT", 1e8)
	if err != nil {
		return nil, err
	}
	workers, err := getEnvIntOrDefault("RERP_MAX_WORKERS", runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, err
	}
	alpha, err := getEnvFloatOrDefault("RERP_ALPHA", 0.05)
	if err != nil {
		return nil, err
	}

	config := &Config{
		Solver: SolverConfig{
			Method:         getEnvOrDefault("RERP_SOLVER", "svd"),
			ConditionLimit: conditionLimit,
		},
		Fit: FitConfig{
			Workers: workers,
		},
		Window: WindowConfig{
			Correction: getEnvOrDefault("RERP_CORRECTION", "bh"),
			Alpha:      alpha,
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func validateConfig(config *Config) error {
	switch config.Solver.Method {
	case "svd", "qr":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("RERP_SOLVER %q is not svd or qr", config.Solver.Method))
	}
	if config.Solver.ConditionLimit <= 0 || math.IsInf(config.Solver.ConditionLimit, 0) || math.IsNaN(config.Solver.ConditionLimit) {
		return errors.ConfigInvalid("RERP_CONDITION_LIMIT must be positive and finite")
	}
	if config.Fit.Workers <= 0 {
		return errors.ConfigInvalid("RERP_MAX_WORKERS must be positive")
	}
	if _, err := window.ParseCorrection(config.Window.Correction); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("RERP_CORRECTION: %v", err))
	}
	if config.Window.Alpha <= 0 || config.Window.Alpha >= 1 {
		return errors.ConfigInvalid("RERP_ALPHA must lie in (0, 1)")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s: %q is not an integer", key, value))
	}
	return intValue, nil
}

func getEnvFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s: %q is not a number", key, value))
	}
	return floatValue, nil
}
