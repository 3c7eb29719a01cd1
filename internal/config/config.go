// Package config provides configuration management functionality.
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

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for all databases (always absolute)
	Port               int
	LogLevel           string
	DevMode            bool
	AnalysisServiceURL string
	AnalysisTimeout    time.Duration
	CORSAllowedOrigins []string
	RecommendationTTL  time.Duration
	CleanupSchedule    string // cron expression with seconds
	WALCheckpointCron  string
	IntegrityCron      string
	EngineSettingsPath string // optional YAML file
	Engine             *EngineSettings
}

// Load reads configuration from environment variables and, when
// ENGINE_SETTINGS_PATH is set, the engine settings file.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("BALLAST_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("BALLAST_PORT", 8001),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		AnalysisServiceURL: getEnv("ANALYSIS_SERVICE_URL", "http://localhost:5000"),
		AnalysisTimeout:    getEnvAsDuration("ANALYSIS_TIMEOUT", 10*time.Second),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RecommendationTTL:  getEnvAsDuration("RECOMMENDATION_TTL", 24*time.Hour),
		CleanupSchedule:    getEnv("CLEANUP_SCHEDULE", "0 0 * * * *"),
		WALCheckpointCron:  getEnv("WAL_CHECKPOINT_SCHEDULE", "0 30 3 * * *"),
		IntegrityCron:      getEnv("INTEGRITY_CHECK_SCHEDULE", "0 0 4 * * 0"),
		EngineSettingsPath: getEnv("ENGINE_SETTINGS_PATH", ""),
	}

	engine, err := LoadEngineSettings(cfg.EngineSettingsPath)
	if err != nil {
		return nil, err
	}
	cfg.Engine = engine

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the path of a named database inside DataDir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, ValidationError{Field: "BALLAST_PORT", Message: fmt.Sprintf("port %d out of range", c.Port)})
	}
	if c.AnalysisServiceURL == "" {
		errs = append(errs, ValidationError{Field: "ANALYSIS_SERVICE_URL", Message: "must not be empty"})
	} else if !strings.HasPrefix(c.AnalysisServiceURL, "http://") && !strings.HasPrefix(c.AnalysisServiceURL, "https://") {
		errs = append(errs, ValidationError{Field: "ANALYSIS_SERVICE_URL", Message: "must be an http(s) URL"})
	}
	if c.AnalysisTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "ANALYSIS_TIMEOUT", Message: "must be positive"})
	}
	if c.RecommendationTTL <= 0 {
		errs = append(errs, ValidationError{Field: "RECOMMENDATION_TTL", Message: "must be positive"})
	}
	if c.Engine != nil {
		if err := c.Engine.Validate(); err != nil {
			if engineErrs, ok := err.(ValidationErrors); ok {
				errs = append(errs, engineErrs...)
			} else {
				errs = append(errs, ValidationError{Field: "engine", Message: err.Error()})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
