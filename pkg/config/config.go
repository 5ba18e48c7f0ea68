// Package config provides configuration loading for parrecon. It loads
// settings from a YAML file and falls back to defaults when the file is
// absent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers bounds how many image types are assembled concurrently.
		Workers int `yaml:"workers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Dir is where containers and figures are written. Empty means a
		// processed_data directory next to the input files.
		Dir string `yaml:"dir"`

		// SaveFigures renders montage figures alongside the container.
		SaveFigures bool `yaml:"saveFigures"`
	} `yaml:"output"`

	// Figure layout parameters
	Figures struct {
		// MaxColumns is the maximum number of tiles per montage row.
		MaxColumns int `yaml:"maxColumns"`

		// DynamicInterval is the subsampling step for long dynamic series.
		DynamicInterval int `yaml:"dynamicInterval"`

		// RobustWindow windows intensities on percentiles instead of min/max.
		RobustWindow bool `yaml:"robustWindow"`
	} `yaml:"figures"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error.
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := validation.Validate(c.Processing.Workers, validation.Min(0)); err != nil {
		return fmt.Errorf("processing.workers: %w", err)
	}
	if err := validation.Validate(c.Figures.MaxColumns, validation.Min(1)); err != nil {
		return fmt.Errorf("figures.maxColumns: %w", err)
	}
	if err := validation.Validate(c.Figures.DynamicInterval, validation.Min(1)); err != nil {
		return fmt.Errorf("figures.dynamicInterval: %w", err)
	}
	if err := validation.Validate(c.Logging.Level,
		validation.In("debug", "info", "warn", "error")); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = runtime.NumCPU()

	cfg.Output.SaveFigures = false

	cfg.Figures.MaxColumns = 4
	cfg.Figures.DynamicInterval = 8
	cfg.Figures.RobustWindow = false

	cfg.Logging.Level = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
