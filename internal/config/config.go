package config

import (
	"os"
	"strconv"

	"distreg/internal/errors"

	"github.com/joho/godotenv"
)

// Config represents the process-level settings of a run
type Config struct {
	Log        LogConfig
	Output     OutputConfig
	Archive    ArchiveConfig
	Regression RegressionConfig
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// OutputConfig says where result artifacts go
type OutputConfig struct {
	Dir      string
	Workbook bool // also write results.xlsx
}

// ArchiveConfig holds the optional SQL result archive settings
type ArchiveConfig struct {
	Driver string // "sqlite" or "postgres"; empty disables archiving
	DSN    string
}

// Enabled reports whether runs should be archived
func (a ArchiveConfig) Enabled() bool {
	return a.Driver != ""
}

// RegressionConfig holds model fitting settings
type RegressionConfig struct {
	Parallelism     int
	ConfidenceLevel float64
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(errors.WithCode(errors.CodeConfigInvalid, err), "failed to load %s", path)
	}
	return nil
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "INFO"),
		},
		Output: OutputConfig{
			Dir:      getEnvOrDefault("DISTREG_OUTPUT_DIR", "output"),
			Workbook: getEnvBoolOrDefault("DISTREG_WORKBOOK", false),
		},
		Archive: ArchiveConfig{
			Driver: getEnvOrDefault("DISTREG_ARCHIVE_DRIVER", ""),
			DSN:    getEnvOrDefault("DISTREG_ARCHIVE_DSN", ""),
		},
		Regression: RegressionConfig{
			Parallelism:     getEnvIntOrDefault("DISTREG_PARALLELISM", 1),
			ConfidenceLevel: getEnvFloatOrDefault("DISTREG_CONFIDENCE_LEVEL", 0.95),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Output.Dir == "" {
		return errors.ConfigInvalid("output directory is required")
	}
	switch config.Archive.Driver {
	case "":
	case "sqlite", "postgres":
		if config.Archive.DSN == "" {
			return errors.ConfigInvalid("DISTREG_ARCHIVE_DSN is required when archiving is enabled")
		}
	default:
		return errors.ConfigInvalid("unsupported archive driver " + strconv.Quote(config.Archive.Driver))
	}
	if config.Regression.Parallelism < 1 {
		return errors.ConfigInvalid("DISTREG_PARALLELISM must be at least 1")
	}
	if config.Regression.ConfidenceLevel <= 0 || config.Regression.ConfidenceLevel >= 1 {
		return errors.ConfigInvalid("DISTREG_CONFIDENCE_LEVEL must be in (0, 1)")
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
