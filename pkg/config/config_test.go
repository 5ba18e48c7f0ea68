package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Processing.Workers < 1 {
		t.Errorf("Workers = %d, want at least 1", cfg.Processing.Workers)
	}
	if cfg.Figures.MaxColumns != 4 {
		t.Errorf("MaxColumns = %d, want 4", cfg.Figures.MaxColumns)
	}
	if cfg.Figures.DynamicInterval != 8 {
		t.Errorf("DynamicInterval = %d, want 8", cfg.Figures.DynamicInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfigMissingFileFallsBack(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Figures.MaxColumns != 4 {
		t.Errorf("fallback MaxColumns = %d, want 4", cfg.Figures.MaxColumns)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
processing:
  workers: 2
output:
  saveFigures: true
figures:
  maxColumns: 6
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Processing.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Processing.Workers)
	}
	if !cfg.Output.SaveFigures {
		t.Error("SaveFigures not set")
	}
	if cfg.Figures.MaxColumns != 6 {
		t.Errorf("MaxColumns = %d, want 6", cfg.Figures.MaxColumns)
	}
	// Untouched values keep their defaults.
	if cfg.Figures.DynamicInterval != 8 {
		t.Errorf("DynamicInterval = %d, want default 8", cfg.Figures.DynamicInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "logging:\n  level: loud\n"},
		{"negative columns", "figures:\n  maxColumns: -2\n"},
		{"negative workers", "processing:\n  workers: -1\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("LoadConfig accepted invalid configuration")
			}
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Processing.Workers = 3
	cfg.Output.Dir = "/data/out"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Processing.Workers != 3 {
		t.Errorf("Workers = %d, want 3", loaded.Processing.Workers)
	}
	if loaded.Output.Dir != "/data/out" {
		t.Errorf("Dir = %q", loaded.Output.Dir)
	}
}
