// Package config loads beacon configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all beacon configuration.
type Config struct {
	// Catalog and rescan settings
	Catalog CatalogConfig `yaml:"catalog"`

	// Ranking settings
	Ranking RankingConfig `yaml:"ranking"`

	// Learned-data settings
	Learning LearningConfig `yaml:"learning"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CatalogConfig configures provider persistence and the rescanner.
type CatalogConfig struct {
	// CacheDir holds per-provider snapshot files.
	CacheDir string `yaml:"cache_dir"`
	// DataDir holds provider-owned state files.
	DataDir string `yaml:"data_dir"`

	RescanStartup  string `yaml:"rescan_startup"`
	RescanPeriod   string `yaml:"rescan_period"`
	RescanCampaign string `yaml:"rescan_campaign"`
	RescanWorkers  int    `yaml:"rescan_workers"`
}

// RankingConfig configures the similarity metric and result limits.
type RankingConfig struct {
	Metric     string `yaml:"metric"` // substring, fuzzy
	MatchLimit int    `yaml:"match_limit"`
}

// LearningConfig configures the usage register.
type LearningConfig struct {
	// DataDir holds the mnemonics file.
	DataDir string `yaml:"data_dir"`
	// SaveInterval is how often learned data is flushed while running.
	SaveInterval string `yaml:"save_interval"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration rooted under the
// user cache/data dirs.
func DefaultConfig() *Config {
	cacheRoot, _ := os.UserCacheDir()
	dataRoot, _ := os.UserConfigDir()
	return &Config{
		Catalog: CatalogConfig{
			CacheDir:       filepath.Join(cacheRoot, "beacon"),
			DataDir:        filepath.Join(dataRoot, "beacon"),
			RescanStartup:  "10s",
			RescanPeriod:   "5s",
			RescanCampaign: "10m",
			RescanWorkers:  2,
		},
		Ranking: RankingConfig{
			Metric:     "substring",
			MatchLimit: 50,
		},
		Learning: LearningConfig{
			DataDir:      filepath.Join(dataRoot, "beacon"),
			SaveInterval: "61m",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
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

// DefaultPath returns the config file location.
func DefaultPath() string {
	root, err := os.UserConfigDir()
	if err != nil {
		return "beacon.yaml"
	}
	return filepath.Join(root, "beacon", "config.yaml")
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("BEACON_CACHE_DIR"); dir != "" {
		c.Catalog.CacheDir = dir
	}
	if dir := os.Getenv("BEACON_DATA_DIR"); dir != "" {
		c.Catalog.DataDir = dir
		c.Learning.DataDir = dir
	}
	if metric := os.Getenv("BEACON_METRIC"); metric != "" {
		c.Ranking.Metric = metric
	}
	if level := os.Getenv("BEACON_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("BEACON_LOG_FILE"); file != "" {
		c.Logging.File = file
	}
}

// GetRescanStartup returns the rescan startup delay as a duration.
func (c *Config) GetRescanStartup() time.Duration {
	return parseDuration(c.Catalog.RescanStartup, 10*time.Second)
}

// GetRescanPeriod returns the pause between rescan ticks.
func (c *Config) GetRescanPeriod() time.Duration {
	return parseDuration(c.Catalog.RescanPeriod, 5*time.Second)
}

// GetRescanCampaign returns the full-sweep duration.
func (c *Config) GetRescanCampaign() time.Duration {
	return parseDuration(c.Catalog.RescanCampaign, 10*time.Minute)
}

// GetSaveInterval returns the learned-data flush interval.
func (c *Config) GetSaveInterval() time.Duration {
	return parseDuration(c.Learning.SaveInterval, 61*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return fallback
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Ranking.Metric {
	case "", "substring", "fuzzy":
	default:
		return fmt.Errorf("unknown ranking metric %q", c.Ranking.Metric)
	}
	if c.Catalog.RescanWorkers < 0 {
		return fmt.Errorf("rescan_workers must be >= 0")
	}
	if c.Ranking.MatchLimit < 0 {
		return fmt.Errorf("match_limit must be >= 0")
	}
	return nil
}
