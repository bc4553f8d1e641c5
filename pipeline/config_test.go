package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	// WHAT: The defaults form a runnable configuration.
	// WHY: A missing config file must not leave the binary unstartable.
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	// WHAT: Each required field is enforced, including the rule that
	// scanned pages need at least one raster-capable engine.
	// WHY: Misconfigurations should fail at startup, not mid-batch.
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty output_dir", func(c *Config) { c.OutputDir = "" }},
		{"empty db_path", func(c *Config) { c.DBPath = "" }},
		{"zero workers", func(c *Config) { c.MaxWorkers = 0 }},
		{"negative timeout", func(c *Config) { c.DocTimeoutSec = -1 }},
		{"no raster engine", func(c *Config) { c.OCREnabled = false; c.MLServerURL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidate_MLOnlyIsFine(t *testing.T) {
	// WHAT: OCR off is accepted when an ML server covers raster pages.
	// WHY: Deployments with a layout model may not ship tesseract.
	cfg := DefaultConfig()
	cfg.OCREnabled = false
	cfg.MLServerURL = "http://127.0.0.1:9000"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("ml-only config rejected: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	// WHAT: A YAML file overrides defaults and leaves the rest in place.
	// WHY: Operators tune a handful of keys, not the whole file.
	dir := t.TempDir()
	path := filepath.Join(dir, "lexpdf.yaml")
	body := `
output_dir: /var/lexpdf/out
max_workers: 8
languages: [por, eng]
system_code: ESAJ
exclusion_words: [sigilo, "uso interno"]
sanitize:
  render_dpi: 400
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDir != "/var/lexpdf/out" {
		t.Errorf("output_dir = %q", cfg.OutputDir)
	}
	if cfg.MaxWorkers != 8 {
		t.Errorf("max_workers = %d", cfg.MaxWorkers)
	}
	if len(cfg.Languages) != 2 || cfg.Languages[1] != "eng" {
		t.Errorf("languages = %v", cfg.Languages)
	}
	if cfg.Sanitize.RenderDPI != 400 {
		t.Errorf("render_dpi = %d", cfg.Sanitize.RenderDPI)
	}
	if cfg.SystemCode != "ESAJ" {
		t.Errorf("system_code = %q", cfg.SystemCode)
	}
	if len(cfg.ExclusionWords) != 2 || cfg.ExclusionWords[1] != "uso interno" {
		t.Errorf("exclusion_words = %v", cfg.ExclusionWords)
	}
	if cfg.DBPath != "contextstore.db" {
		t.Errorf("db_path default lost: %q", cfg.DBPath)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	// WHAT: A nonexistent path errors instead of silently using defaults.
	// WHY: A typoed --config flag must be loud.
	if _, err := LoadConfig("/nonexistent/lexpdf.yaml"); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadConfig_InvalidContent(t *testing.T) {
	// WHAT: A file that parses but fails validation is rejected at load.
	// WHY: Validation belongs to loading, not to first use.
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("max_workers: -2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}
