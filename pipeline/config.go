package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/lexpdf/classify"
	"github.com/hazyhaar/lexpdf/contextstore"
	"github.com/hazyhaar/lexpdf/extract"
	"github.com/hazyhaar/lexpdf/layout"
	"github.com/hazyhaar/lexpdf/sanitize"
)

// Config holds the full pipeline configuration.
type Config struct {
	// OutputDir receives one artifact directory per processed document.
	OutputDir string `yaml:"output_dir"`

	// DBPath is the SQLite context store location.
	DBPath string `yaml:"db_path"`

	// MaxWorkers bounds concurrent documents in a batch.
	MaxWorkers int `yaml:"max_workers"`

	// DocTimeoutSec bounds one document end to end; 0 means no limit.
	DocTimeoutSec int `yaml:"doc_timeout_sec"`

	// Languages are tesseract language codes for the OCR tier.
	Languages []string `yaml:"languages"`

	// MLServerURL points at the layout-model server; empty disables the
	// ML tier.
	MLServerURL string `yaml:"ml_server_url"`

	// OCREnabled gates the tesseract tier.
	OCREnabled bool `yaml:"ocr_enabled"`

	// RemoteClassifierURL switches section classification to a remote
	// service; empty keeps the pattern classifier.
	RemoteClassifierURL string `yaml:"remote_classifier_url"`

	// SystemCode forces the judicial system (PJE, ESAJ, ...) for every
	// document instead of auto-detecting it; empty means detect. A per-job
	// code still wins over this value.
	SystemCode string `yaml:"system_code"`

	// ExclusionWords lists terms whose lines are dropped from extracted
	// text before assembly: recurring stamps, office footers, scanner
	// banners. Matching is case-insensitive.
	ExclusionWords []string `yaml:"exclusion_words"`

	Layout   layout.Config       `yaml:"layout"`
	Sanitize sanitize.Config     `yaml:"sanitize"`
	Extract  extract.Config      `yaml:"extract"`
	Classify classify.Config     `yaml:"classify"`
	Store    contextstore.Config `yaml:"store"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputDir:  "out",
		DBPath:     "contextstore.db",
		MaxWorkers: 4,
		Languages:  []string{"por"},
		OCREnabled: true,
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.DocTimeoutSec < 0 {
		return fmt.Errorf("doc_timeout_sec must not be negative, got %d", c.DocTimeoutSec)
	}
	if !c.OCREnabled && c.MLServerURL == "" {
		// The native parser alone cannot read scanned pages.
		return fmt.Errorf("ocr_enabled=false requires ml_server_url")
	}
	return nil
}
