package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"goprep/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig
	Execution  ExecutionConfig
	Ledger     LedgerConfig
	Storage    StorageConfig
	Defaulting DefaultingConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port        string
	GinMode     string
	CORSOrigins []string
}

// ExecutionConfig selects and configures the preprocessing execution service
type ExecutionConfig struct {
	Mode        string // "remote" or "local"
	ServiceURL  string
	Timeout     time.Duration
	OutputDir   string
	Workers     int
	KFoldSplits int
}

// LedgerConfig holds submission ledger settings
type LedgerConfig struct {
	Driver string // "sqlite", "postgres" or "memory"
	URL    string
}

// StorageConfig holds upload storage settings
type StorageConfig struct {
	UploadDir   string
	MaxFileSize int64
}

// DefaultingConfig controls how suggested defaults seed the configuration
type DefaultingConfig struct {
	Policy string // "once" or "on_change"
}

const (
	ExecModeRemote = "remote"
	ExecModeLocal  = "local"

	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:     *loadServerConfig(),
		Execution:  *loadExecutionConfig(),
		Ledger:     *loadLedgerConfig(),
		Storage:    *loadStorageConfig(),
		Defaulting: DefaultingConfig{Policy: getEnvOrDefault("DEFAULTING_POLICY", "once")},
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:        getEnvOrDefault("PORT", "8080"),
		GinMode:     getEnvOrDefault("GIN_MODE", "release"),
		CORSOrigins: getEnvListOrDefault("CORS_ORIGINS", []string{"*"}),
	}
}

func loadExecutionConfig() *ExecutionConfig {
	return &ExecutionConfig{
		Mode:        getEnvOrDefault("EXEC_MODE", ExecModeLocal),
		ServiceURL:  strings.TrimRight(getEnvOrDefault("EXEC_SERVICE_URL", "http://localhost:5000"), "/"),
		Timeout:     getEnvDurationOrDefault("EXEC_TIMEOUT", 10*time.Minute),
		OutputDir:   getEnvOrDefault("LOCAL_OUTPUT_DIR", "data/preprocessed"),
		Workers:     getEnvIntOrDefault("LOCAL_WORKERS", 4),
		KFoldSplits: getEnvIntOrDefault("KFOLD_SPLITS", 5),
	}
}

func loadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		Driver: getEnvOrDefault("LEDGER_DRIVER", LedgerSQLite),
		URL:    getEnvOrDefault("DATABASE_URL", "file:data/ledger.db?_pragma=busy_timeout(5000)"),
	}
}

func loadStorageConfig() *StorageConfig {
	return &StorageConfig{
		UploadDir:   getEnvOrDefault("UPLOAD_DIR", "data/uploads"),
		MaxFileSize: int64(getEnvIntOrDefault("MAX_UPLOAD_MB", 50)) * 1024 * 1024,
	}
}

func validateConfig(config *Config) error {
	switch config.Execution.Mode {
	case ExecModeRemote:
		if config.Execution.ServiceURL == "" {
			return errors.ConfigInvalid("EXEC_SERVICE_URL is required when EXEC_MODE=remote")
		}
	case ExecModeLocal:
		if config.Execution.OutputDir == "" {
			return errors.ConfigInvalid("LOCAL_OUTPUT_DIR is required when EXEC_MODE=local")
		}
	default:
		return errors.ConfigInvalid("EXEC_MODE must be remote or local, got " + strconv.Quote(config.Execution.Mode))
	}
	if config.Execution.Workers <= 0 {
		return errors.ConfigInvalid("LOCAL_WORKERS must be positive")
	}
	if config.Execution.KFoldSplits < 2 {
		return errors.ConfigInvalid("KFOLD_SPLITS must be at least 2")
	}

	switch config.Ledger.Driver {
	case LedgerMemory:
	case LedgerSQLite, LedgerPostgres:
		if config.Ledger.URL == "" {
			return errors.ConfigInvalid("DATABASE_URL is required for the " + config.Ledger.Driver + " ledger")
		}
	default:
		return errors.ConfigInvalid("LEDGER_DRIVER must be sqlite, postgres or memory, got " + strconv.Quote(config.Ledger.Driver))
	}

	switch config.Defaulting.Policy {
	case "once", "on_change":
	default:
		return errors.ConfigInvalid("DEFAULTING_POLICY must be once or on_change")
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
