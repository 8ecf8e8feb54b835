// Package models defines data structures for configuration, game records,
// and task results shared across the application.
package models

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// Sites holds the base URLs of the third-party endpoints the resolver talks
// to. The markup those sites serve is a moving target, so the locations are
// configuration rather than constants baked into the cascade.
type Sites struct {
	CatalogBase  string `yaml:"catalog_base"`
	WorkshopBase string `yaml:"workshop_base"`
	MirrorHome   string `yaml:"mirror_home"`
	MirrorAPI    string `yaml:"mirror_api"`
}

// Config holds persisted runtime configuration. Missing file means defaults;
// CLI flags override individual fields per run but are not written back
// unless the user changes settings explicitly.
type Config struct {
	DownloadDir       string `yaml:"download_dir"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	Retries           int    `yaml:"retries"`
	Workers           int    `yaml:"workers"`
	RefreshGamesCache bool   `yaml:"refresh_games_cache"`
	Sites             Sites  `yaml:"sites"`
}

// DefaultConfig returns the configuration used on first run.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DownloadDir:    filepath.Join(home, "Downloads"),
		TimeoutSeconds: 25,
		Retries:        2,
		Workers:        3,
		Sites: Sites{
			CatalogBase:  "https://catalogue.smods.ru",
			WorkshopBase: "https://steamcommunity.com",
			MirrorHome:   "http://steamworkshop.download/",
			MirrorAPI:    "http://steamworkshop.download/online/steamonline.php",
		},
	}
}

// DataDir returns the directory used for the config file and caches,
// creating it if needed.
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	dir := filepath.Join(home, ".workshopdl")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

// LoadConfig reads the config file from dir, falling back to defaults when
// the file does not exist. Known keys missing from the file keep their
// default values.
func LoadConfig(dir string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Clamp()
	return cfg, nil
}

// Save writes the config back to dir.
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Clamp forces tunables into their supported ranges and fills empty site
// endpoints with defaults.
func (c *Config) Clamp() {
	c.Workers = clamp(c.Workers, 1, 16)
	c.TimeoutSeconds = clamp(c.TimeoutSeconds, 5, 180)
	c.Retries = clamp(c.Retries, 0, 10)
	def := DefaultConfig()
	if c.Sites.CatalogBase == "" {
		c.Sites.CatalogBase = def.Sites.CatalogBase
	}
	if c.Sites.WorkshopBase == "" {
		c.Sites.WorkshopBase = def.Sites.WorkshopBase
	}
	if c.Sites.MirrorHome == "" {
		c.Sites.MirrorHome = def.Sites.MirrorHome
	}
	if c.Sites.MirrorAPI == "" {
		c.Sites.MirrorAPI = def.Sites.MirrorAPI
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
