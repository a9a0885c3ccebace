package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CacheTool selects a compiler cache installed alongside the accelerator.
type CacheTool string

const (
	CacheNone    CacheTool = ""
	CacheCcache  CacheTool = "ccache"
	CacheSccache CacheTool = "sccache"
)

// Config holds host-side settings for the benchmark driver.
// It is immutable after creation via LoadConfig().
type Config struct {
	// Namespace prefixes every instance name derived for this run
	Namespace string `yaml:"namespace"`

	// Image is the pre-baked template image instances launch from
	Image string `yaml:"image"`

	// ResultsDir is the persistent host-side result store (ledger,
	// transcripts, reports, run index)
	ResultsDir string `yaml:"results_dir"`

	// LedgerName is the CSV ledger filename inside ResultsDir
	LedgerName string `yaml:"ledger"`

	// TargetsFile is the test-definition file mapping target names to
	// build parameters
	TargetsFile string `yaml:"targets_file"`

	// Workspace is the shared host directory copied into every instance
	// (runner script, helper tools)
	Workspace string `yaml:"workspace"`

	// TimeFormat is the strftime-style spec forwarded to the runner for
	// ledger timestamps
	TimeFormat string `yaml:"time_format"`
}

// LoadConfig loads configuration from the given directory.
// It applies defaults, then file values, then environment overrides,
// then validates.
func LoadConfig(dir string) (*Config, error) {
	cfg := DefaultConfig()

	// Try to load config file (optional)
	configPath := filepath.Join(dir, ".pkgbench.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	// Note: missing config file is not an error (use defaults)

	applyEnvOverrides(cfg)

	// Resolve relative paths against the loading directory
	if !filepath.IsAbs(cfg.ResultsDir) {
		cfg.ResultsDir = filepath.Join(dir, cfg.ResultsDir)
	}
	if cfg.Workspace != "" && !filepath.IsAbs(cfg.Workspace) {
		cfg.Workspace = filepath.Join(dir, cfg.Workspace)
	}
	if cfg.TargetsFile != "" && !filepath.IsAbs(cfg.TargetsFile) {
		cfg.TargetsFile = filepath.Join(dir, cfg.TargetsFile)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LedgerPath returns the absolute path of the host-side timing ledger.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.ResultsDir, c.LedgerName)
}
