package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-autolab/infrastructure/llm"
	"github.com/ahrav/go-autolab/internal/domain"
)

// Environment variables that override file configuration.
const (
	EnvLLMProvider = "AUTOLAB_LLM_PROVIDER"
	EnvLLMModel    = "AUTOLAB_LLM_MODEL"
	EnvLLMAPIKey   = "AUTOLAB_LLM_API_KEY"
	EnvDBPath      = "AUTOLAB_DB_PATH"
	EnvHTTPAddr    = "AUTOLAB_HTTP_ADDR"
	EnvLogLevel    = "AUTOLAB_LOG_LEVEL"
	EnvInMemory    = "AUTOLAB_IN_MEMORY"
)

// AppConfig is the root configuration of the autolab service and CLI.
type AppConfig struct {
	// Server configures the HTTP surface.
	Server ServerConfig `yaml:"server" validate:"required"`
	// Database configures persistence.
	Database DatabaseConfig `yaml:"database" validate:"required"`
	// LLM configures the text-generation client stack.
	LLM llm.StackConfig `yaml:"llm" validate:"required"`
	// Logging configures the zap logger.
	Logging LoggingConfig `yaml:"logging"`
	// Analysis configures the lab stages and run limits.
	Analysis AnalysisConfig `yaml:"analysis"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
}

// DatabaseConfig selects the store. InMemory wins over Path.
type DatabaseConfig struct {
	Path     string `yaml:"path" validate:"required_unless=InMemory true"`
	InMemory bool   `yaml:"in_memory"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	// Development switches to the human-readable zap encoder.
	Development bool `yaml:"development"`
}

// AnalysisConfig configures how analyses run.
type AnalysisConfig struct {
	// Timeout bounds one full dual-lab analysis. Zero means no limit.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	// CatalogDir replaces the built-in paper catalog with the
	// <lab>.yaml files found there.
	CatalogDir string `yaml:"catalog_dir" validate:"omitempty,dir"`
	// Stages optionally overrides the parameters of the lab stages. When
	// set it must list the five stages in order.
	Stages []StageConfig `yaml:"stages" validate:"omitempty,len=5,dive"`
}

// StageConfig names one lab stage and its unit parameters.
type StageConfig struct {
	// ID identifies the stage inside its lab pipeline.
	ID string `yaml:"id" validate:"required,alphanum,min=1,max=100"`
	// Type selects the unit implementation.
	Type string `yaml:"type" validate:"required,oneof=planner retriever reader critic synthesizer"`
	// Parameters are decoded by the unit factory.
	Parameters yaml.Node `yaml:"parameters"`
}

// DefaultStages returns the lab stages with default parameters.
func DefaultStages() []StageConfig {
	stages := make([]StageConfig, 0, len(LabStages))
	for _, t := range LabStages {
		stages = append(stages, StageConfig{ID: t, Type: t})
	}
	return stages
}

// DefaultConfig returns a configuration that runs fully offline with the
// mock provider and a local SQLite file.
func DefaultConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Addr:            "localhost:8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "autolab.db"},
		LLM:      llm.DefaultStackConfig(),
		Logging:  LoggingConfig{Level: "info"},
		Analysis: AnalysisConfig{Timeout: 5 * time.Minute, Stages: DefaultStages()},
	}
}

// LoadConfig reads path over DefaultConfig, applies environment overrides
// and validates the result. An empty path skips the file.
func LoadConfig(path string) (AppConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return AppConfig{}, fmt.Errorf("failed to read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return AppConfig{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return AppConfig{}, err
	}
	if len(cfg.Analysis.Stages) == 0 {
		cfg.Analysis.Stages = DefaultStages()
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// applyEnv overlays the AUTOLAB_* variables found by lookup.
func applyEnv(cfg *AppConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvLLMProvider); ok && v != "" {
		cfg.LLM.Provider = v
	}
	if v, ok := lookup(EnvLLMModel); ok && v != "" {
		cfg.LLM.Model = v
	}
	if v, ok := lookup(EnvLLMAPIKey); ok && v != "" {
		cfg.LLM.APIKey = v
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		cfg.Database.Path = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := lookup(EnvInMemory); ok && v != "" {
		inMemory, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvInMemory, err)
		}
		cfg.Database.InMemory = inMemory
	}
	return nil
}

// Validate checks struct tags, the registered provider and the stage
// order and parameters.
func (c AppConfig) Validate() error {
	v := validator.New()
	if err := registerCustomValidators(v); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	if err := validateStages(c.Analysis.Stages); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	return nil
}
