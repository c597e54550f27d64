package config

import (
	"os"
	"strconv"
	"strings"

	"bnla/internal/errors"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Data       DataConfig
	Sampler    SamplerConfig
	Limitation LimitationConfig
	Output     OutputConfig
	Database   DatabaseConfig
	Server     ServerConfig
	Logging    LoggingConfig
}

// DataConfig holds input dataset settings
type DataConfig struct {
	File            string
	ExperimentsFile string
}

// SamplerConfig holds the default MCMC settings applied to every experiment
type SamplerConfig struct {
	Iterations  int
	Burnin      int
	Chains      int
	Thin        int
	Seed        int64
	MaxParallel int
}

// LimitationConfig holds nutrient-limitation classifier settings
type LimitationConfig struct {
	Draws int
}

// OutputConfig holds file output settings
type OutputConfig struct {
	Dir        string
	DrawsCodec string
}

// DatabaseConfig holds results store settings
type DatabaseConfig struct {
	Driver string
	URL    string
}

// ServerConfig holds read-only API settings
type ServerConfig struct {
	Port string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads an optional .env file, then configuration from environment variables,
// and validates it
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", f)
		}
	}

	cfg := &Config{
		Data: DataConfig{
			File:            getEnvOrDefault("BNLA_DATA_FILE", "bnla_final.csv"),
			ExperimentsFile: getEnvOrDefault("BNLA_EXPERIMENTS_FILE", "experiments/bnla.yaml"),
		},
		Sampler: SamplerConfig{
			Iterations:  getEnvIntOrDefault("BNLA_ITERATIONS", 10000),
			Burnin:      getEnvIntOrDefault("BNLA_BURNIN", 5000),
			Chains:      getEnvIntOrDefault("BNLA_CHAINS", 3),
			Thin:        getEnvIntOrDefault("BNLA_THIN", 1),
			Seed:        getEnvInt64OrDefault("BNLA_SEED", 42),
			MaxParallel: getEnvIntOrDefault("BNLA_MAX_PARALLEL", 2),
		},
		Limitation: LimitationConfig{
			Draws: getEnvIntOrDefault("BNLA_LIMITATION_DRAWS", 3000),
		},
		Output: OutputConfig{
			Dir:        getEnvOrDefault("BNLA_OUTPUT_DIR", "outputs"),
			DrawsCodec: strings.ToLower(getEnvOrDefault("BNLA_DRAWS_CODEC", "zstd")),
		},
		Database: DatabaseConfig{
			Driver: getEnvOrDefault("DATABASE_DRIVER", "sqlite3"),
			URL:    getEnvOrDefault("DATABASE_URL", "bnla.db"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	s := cfg.Sampler
	if s.Iterations <= 0 {
		return errors.ConfigInvalid("BNLA_ITERATIONS must be positive")
	}
	if s.Burnin < 0 || s.Burnin >= s.Iterations {
		return errors.ConfigInvalid("BNLA_BURNIN must be in [0, BNLA_ITERATIONS)")
	}
	if s.Chains < 1 {
		return errors.ConfigInvalid("BNLA_CHAINS must be at least 1")
	}
	if s.Thin < 1 {
		return errors.ConfigInvalid("BNLA_THIN must be at least 1")
	}
	if s.MaxParallel < 1 {
		return errors.ConfigInvalid("BNLA_MAX_PARALLEL must be at least 1")
	}
	if cfg.Limitation.Draws < 1 {
		return errors.ConfigInvalid("BNLA_LIMITATION_DRAWS must be at least 1")
	}
	switch cfg.Output.DrawsCodec {
	case "zstd", "lz4", "none":
	default:
		return errors.ConfigInvalid("BNLA_DRAWS_CODEC must be one of zstd, lz4, none")
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return errors.ConfigInvalid("DATABASE_DRIVER must be postgres or sqlite3")
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

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
