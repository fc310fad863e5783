package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ernie/heistwatch/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Upstream UpstreamConfig       `yaml:"upstream"`
	Feeds    FeedsConfig          `yaml:"feeds"`
	Combos   []domain.ComboPreset `yaml:"combos"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
	StaticDir  string `yaml:"static_dir"`
}

// UpstreamConfig holds the live transport settings
type UpstreamConfig struct {
	// URL is the websocket base; the feed name is appended as a path segment
	URL string `yaml:"url"`
	// StatusURL is the ban-status re-check endpoint
	StatusURL   string        `yaml:"status_url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// FeedsConfig holds per-feed settings
type FeedsConfig struct {
	Robbery FeedConfig `yaml:"robbery"`
	Mansion FeedConfig `yaml:"mansion"`
	Airdrop FeedConfig `yaml:"airdrop"`
}

// FeedConfig holds one feed's settings
type FeedConfig struct {
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
}

// IdleWindows returns the per-feed inactivity windows
func (c *Config) IdleWindows() map[domain.Feed]time.Duration {
	return map[domain.Feed]time.Duration{
		domain.FeedRobbery: c.Feeds.Robbery.InactivityTimeout,
		domain.FeedMansion: c.Feeds.Mansion.InactivityTimeout,
		domain.FeedAirdrop: c.Feeds.Airdrop.InactivityTimeout,
	}
}

// DefaultPresets is the built-in power-combo catalog, used when the
// config file defines none. Presets are configuration, not derived
// state, and are loaded once.
func DefaultPresets() []domain.ComboPreset {
	return []domain.ComboPreset{
		{ID: "bank-jewelry", Label: "Bank + Jewelry", Types: []string{"Bank", "Jewelry"}},
		{ID: "museum-casino", Label: "Museum + Casino", Types: []string{"Museum", "Casino"}},
		{ID: "triple-heist", Label: "Bank + Jewelry + Museum", Types: []string{"Bank", "Jewelry", "Museum"}},
		{ID: "trains", Label: "Both Trains", Types: []string{"CargoTrain", "PassengerTrain"}},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Upstream.DialTimeout == 0 {
		cfg.Upstream.DialTimeout = 10 * time.Second
	}
	if cfg.Feeds.Robbery.InactivityTimeout == 0 {
		cfg.Feeds.Robbery.InactivityTimeout = 10 * time.Minute
	}
	if cfg.Feeds.Mansion.InactivityTimeout == 0 {
		cfg.Feeds.Mansion.InactivityTimeout = 10 * time.Minute
	}
	if cfg.Feeds.Airdrop.InactivityTimeout == 0 {
		cfg.Feeds.Airdrop.InactivityTimeout = 10 * time.Minute
	}
	if len(cfg.Combos) == 0 {
		cfg.Combos = DefaultPresets()
	}
	// Note: StaticDir intentionally has no default - empty means don't serve static files

	if err := validatePresets(cfg.Combos); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes configuration to a YAML file
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// validatePresets rejects malformed combo presets early
func validatePresets(presets []domain.ComboPreset) error {
	seen := make(map[string]bool, len(presets))
	for _, p := range presets {
		if p.ID == "" {
			return fmt.Errorf("combo preset missing id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate combo preset id %q", p.ID)
		}
		seen[p.ID] = true
		if len(p.Types) < 2 {
			return fmt.Errorf("combo preset %q needs at least two types", p.ID)
		}
		types := make(map[string]bool, len(p.Types))
		for _, t := range p.Types {
			if types[t] {
				return fmt.Errorf("combo preset %q repeats type %q", p.ID, t)
			}
			types[t] = true
		}
	}
	return nil
}
