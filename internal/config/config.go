// Package config loads pipeline configuration from an optional YAML
// file plus environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CmdrKerfy/tropius-maximus/internal/metrics"
)

// Config holds all configuration for the pipeline.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Sources  SourcesConfig  `yaml:"sources"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Export   ExportConfig   `yaml:"export"`
	Metrics  metrics.Config `yaml:"metrics"`
	LogLevel string         `yaml:"log_level"`

	// APIKey is the optional pokemontcg.io key. Environment only
	// (POKEMON_TCG_API_KEY), never read from the YAML file.
	APIKey string `yaml:"-"`
}

// DatabaseConfig holds the DuckDB file location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SourcesConfig holds the upstream endpoints.
type SourcesConfig struct {
	CardsAPIURL           string `yaml:"cards_api_url"`
	SetsURL               string `yaml:"sets_url"`
	SetFilesURL           string `yaml:"set_files_url"`
	PokeAPIURL            string `yaml:"pokeapi_url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the per-request timeout as a time.Duration.
func (c *SourcesConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// IngestConfig holds retry, pagination and politeness settings.
type IngestConfig struct {
	MaxRetries         int     `yaml:"max_retries"`
	RetryDelaySeconds  int     `yaml:"retry_delay_seconds"`
	CardPageSize       int     `yaml:"card_page_size"`
	SpeciesPageSize    int     `yaml:"species_page_size"`
	SetDelayMillis     int     `yaml:"set_delay_ms"`
	SpeciesPauseEvery  int     `yaml:"species_pause_every"`
	SpeciesPauseMillis int     `yaml:"species_pause_ms"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"`
	RequestBurst       int     `yaml:"request_burst"`
}

// RetryDelay returns the base retry delay. Attempt n waits n times this.
func (c *IngestConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// SetDelay returns the pause between card sets.
func (c *IngestConfig) SetDelay() time.Duration {
	return time.Duration(c.SetDelayMillis) * time.Millisecond
}

// SpeciesPause returns the pause applied every SpeciesPauseEvery species.
func (c *IngestConfig) SpeciesPause() time.Duration {
	return time.Duration(c.SpeciesPauseMillis) * time.Millisecond
}

// ApplyDefaults fills in default values for unset fields. The paging
// and pause settings must end up positive; consumers divide by them.
func (c *IngestConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelaySeconds == 0 {
		c.RetryDelaySeconds = 5
	}
	if c.CardPageSize == 0 {
		c.CardPageSize = 250
	}
	if c.SpeciesPageSize == 0 {
		c.SpeciesPageSize = 100
	}
	if c.SetDelayMillis == 0 {
		c.SetDelayMillis = 500
	}
	if c.SpeciesPauseEvery == 0 {
		c.SpeciesPauseEvery = 20
	}
	if c.SpeciesPauseMillis == 0 {
		c.SpeciesPauseMillis = 100
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}
	if c.RequestBurst == 0 {
		c.RequestBurst = 5
	}
}

// ExportConfig holds the Parquet output location.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// Load reads the YAML file at path, fills in defaults, applies
// environment overrides and validates. An empty path skips the file and
// uses defaults plus environment only.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	config.ApplyDefaults()
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills in default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/pokemon.duckdb"
	}

	if c.Sources.CardsAPIURL == "" {
		c.Sources.CardsAPIURL = "https://api.pokemontcg.io/v2"
	}
	if c.Sources.SetsURL == "" {
		c.Sources.SetsURL = "https://raw.githubusercontent.com/PokemonTCG/pokemon-tcg-data/master/sets/en.json"
	}
	if c.Sources.SetFilesURL == "" {
		c.Sources.SetFilesURL = "https://api.github.com/repos/PokemonTCG/pokemon-tcg-data/contents/cards/en"
	}
	if c.Sources.PokeAPIURL == "" {
		c.Sources.PokeAPIURL = "https://pokeapi.co/api/v2"
	}
	if c.Sources.RequestTimeoutSeconds == 0 {
		c.Sources.RequestTimeoutSeconds = 120
	}

	c.Ingest.ApplyDefaults()

	if c.Export.OutputDir == "" {
		c.Export.OutputDir = "public/data"
	}

	c.Metrics.ApplyDefaults()

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// applyEnvOverrides lets environment variables win over file values.
func (c *Config) applyEnvOverrides() {
	c.Database.Path = getEnvOrDefault("TROPIUS_DB_PATH", c.Database.Path)
	c.Export.OutputDir = getEnvOrDefault("TROPIUS_OUTPUT_DIR", c.Export.OutputDir)
	c.LogLevel = getEnvOrDefault("TROPIUS_LOG_LEVEL", c.LogLevel)
	c.Metrics.Address = getEnvOrDefault("TROPIUS_METRICS_ADDR", c.Metrics.Address)
	c.APIKey = getEnvOrDefault("POKEMON_TCG_API_KEY", c.APIKey)
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Export.OutputDir == "" {
		return fmt.Errorf("export.output_dir is required")
	}
	if c.Sources.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("sources.request_timeout_seconds must be at least 1, got %d", c.Sources.RequestTimeoutSeconds)
	}
	if c.Ingest.MaxRetries < 1 {
		return fmt.Errorf("ingest.max_retries must be at least 1, got %d", c.Ingest.MaxRetries)
	}
	if c.Ingest.CardPageSize < 1 || c.Ingest.CardPageSize > 250 {
		return fmt.Errorf("ingest.card_page_size must be between 1 and 250, got %d", c.Ingest.CardPageSize)
	}
	if c.Ingest.SpeciesPageSize < 1 {
		return fmt.Errorf("ingest.species_page_size must be at least 1, got %d", c.Ingest.SpeciesPageSize)
	}
	if c.Ingest.SpeciesPauseEvery < 1 {
		return fmt.Errorf("ingest.species_pause_every must be at least 1, got %d", c.Ingest.SpeciesPauseEvery)
	}
	if c.Ingest.RequestsPerSecond <= 0 {
		return fmt.Errorf("ingest.requests_per_second must be positive, got %v", c.Ingest.RequestsPerSecond)
	}
	return nil
}

// getEnvOrDefault returns the environment value or the fallback when unset.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
