package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a config file when --config is not given.
const DefaultPath = "foodonto.yml"

// Config holds all foodonto build configuration.
type Config struct {
	// Roots
	InputRoot string `yaml:"input_root"`
	BuildRoot string `yaml:"build_root"`

	// Stage tuning
	Substrates SubstratesConfig `yaml:"substrates"`
	Families   FamiliesConfig   `yaml:"families"`

	// Verification
	Verify VerifyConfig `yaml:"verify"`

	// Build manifest
	Manifest ManifestConfig `yaml:"manifest"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SubstratesConfig configures Stage B.
type SubstratesConfig struct {
	// Taxon ranks eligible for substrate pairs unless a part narrows them.
	Ranks []string `yaml:"ranks"`
}

// FamiliesConfig configures Stage D.
type FamiliesConfig struct {
	// StrictAllowlist fails the stage when a family has no allowlist rules
	// instead of expanding it across every substrate.
	StrictAllowlist bool `yaml:"strict_allowlist"`
}

// VerifyConfig configures contract verification.
type VerifyConfig struct {
	AfterBuild bool `yaml:"after_build"` // verify each stage right after it runs
	MaxErrors  int  `yaml:"max_errors"`  // errors printed per report
}

// ManifestConfig configures the build manifest.
type ManifestConfig struct {
	Enabled     bool `yaml:"enabled"`
	Concurrency int  `yaml:"concurrency"` // artifacts hashed in parallel
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		InputRoot: ".",
		BuildRoot: "build",

		Substrates: SubstratesConfig{
			Ranks: []string{"species", "subspecies", "variety", "cultivar", "breed", "form", "strain"},
		},

		Verify: VerifyConfig{
			AfterBuild: true,
			MaxErrors:  20,
		},

		Manifest: ManifestConfig{
			Enabled:     true,
			Concurrency: 4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FOODONTO_IN"); v != "" {
		c.InputRoot = v
	}
	if v := os.Getenv("FOODONTO_BUILD"); v != "" {
		c.BuildRoot = v
	}
	if v := os.Getenv("FOODONTO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FOODONTO_STRICT_ALLOWLIST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Families.StrictAllowlist = b
		}
	}
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InputRoot) == "" {
		return fmt.Errorf("input root not configured (use --in or FOODONTO_IN)")
	}
	if strings.TrimSpace(c.BuildRoot) == "" {
		return fmt.Errorf("build root not configured (use --build or FOODONTO_BUILD)")
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if strings.EqualFold(c.Logging.Level, l) {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}

	if len(c.Substrates.Ranks) == 0 {
		return fmt.Errorf("substrates.ranks must not be empty")
	}
	if c.Verify.MaxErrors < 0 {
		return fmt.Errorf("verify.max_errors must be >= 0, got %d", c.Verify.MaxErrors)
	}
	if c.Manifest.Concurrency < 1 {
		return fmt.Errorf("manifest.concurrency must be >= 1, got %d", c.Manifest.Concurrency)
	}

	return nil
}
