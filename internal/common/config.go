package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	API   APIConfig
	Batch BatchConfig
	Run   RunConfig
}

// APIConfig holds remote batch API configuration
type APIConfig struct {
	BaseURL          string
	APIKey           string
	Endpoint         string // endpoint path embedded in each batch job
	CompletionWindow string
	Timeout          time.Duration
	MaxAttempts      int
}

// BatchConfig holds submission split limits
type BatchConfig struct {
	MaxRequestsPerBatch int
	MaxBytesPerBatch    int
}

// RunConfig holds per-run behavior for check/repair scans
type RunConfig struct {
	GroupsFile      string
	IndexPath       string
	Parallelism     int
	PersistRecovery bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:          getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:           getEnv("OPENAI_API_KEY", ""),
			Endpoint:         getEnv("BATCH_ENDPOINT", "/v1/chat/completions"),
			CompletionWindow: getEnv("BATCH_COMPLETION_WINDOW", "24h"),
			Timeout:          getEnvAsDuration("BATCH_API_TIMEOUT", 60*time.Second),
			MaxAttempts:      getEnvAsInt("BATCH_API_MAX_ATTEMPTS", 5),
		},
		Batch: BatchConfig{
			MaxRequestsPerBatch: getEnvAsInt("BATCH_MAX_REQUESTS", 100),
			MaxBytesPerBatch:    getEnvAsInt("BATCH_MAX_BYTES", 90*1024*1024),
		},
		Run: RunConfig{
			GroupsFile:      getEnv("DOCBATCH_GROUPS", "groups.yaml"),
			IndexPath:       getEnv("DOCBATCH_INDEX", "docbatch_history.db"),
			Parallelism:     getEnvAsInt("DOCBATCH_PARALLELISM", 4),
			PersistRecovery: getEnvAsBool("DOCBATCH_PERSIST_RECOVERY", true),
		},
	}
}

// Helper functions for environment variable parsing
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
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration.
// Configuration errors are fatal and must surface before any network activity.
func (c *Config) Validate() error {
	if c.API.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Run.GroupsFile == "" {
		return NewAppError("CONFIG_ERROR", "DOCBATCH_GROUPS is required", ErrInvalidInput)
	}
	if c.Batch.MaxRequestsPerBatch <= 0 || c.Batch.MaxBytesPerBatch <= 0 {
		return NewAppError("CONFIG_ERROR", "batch split limits must be positive", ErrInvalidInput)
	}
	return nil
}

// Group is one configured schema/document group: a directory of tracking
// logs sharing an extraction schema and an output destination.
type Group struct {
	Name        string `yaml:"name"`
	TrackingDir string `yaml:"tracking_dir"`
	OutputDir   string `yaml:"output_dir"`
	SchemaFile  string `yaml:"schema_file,omitempty"`
}

type groupsFile struct {
	Groups []Group `yaml:"groups"`
}

// LoadGroups reads the group registry from a YAML file. Every group must
// name an output directory; a group without one is a configuration error.
func LoadGroups(path string) ([]Group, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("read groups file %s", path), err)
	}
	var gf groupsFile
	if err := yaml.Unmarshal(raw, &gf); err != nil {
		return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("parse groups file %s", path), err)
	}
	if len(gf.Groups) == 0 {
		return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("no groups defined in %s", path), ErrInvalidInput)
	}
	for _, g := range gf.Groups {
		if g.Name == "" || g.TrackingDir == "" {
			return nil, NewAppError("CONFIG_ERROR", "every group needs a name and tracking_dir", ErrInvalidInput)
		}
		if g.OutputDir == "" {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("group %q has no output_dir configured", g.Name), ErrInvalidInput)
		}
	}
	return gf.Groups, nil
}
