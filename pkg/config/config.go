package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feedsite/hknews/pkg/domain"
)

// Config holds the application configuration
type Config struct {
	Sources []domain.FeedSource `yaml:"sources"`

	Fetch struct {
		Timeout       time.Duration `yaml:"timeout"`        // per request
		MaxConcurrent int           `yaml:"max_concurrent"` // global in-flight cap
		PerHost       int           `yaml:"per_host"`       // per-host in-flight cap
		MaxRetries    int           `yaml:"max_retries"`    // transient failures only
		UserAgent     string        `yaml:"user_agent"`
	} `yaml:"fetch"`

	Extract struct {
		Timeout       time.Duration `yaml:"timeout"`         // per article
		MinTextLength int           `yaml:"min_text_length"` // below this the extraction is considered empty
	} `yaml:"extract"`

	Images struct {
		Dir      string `yaml:"dir"`
		MaxWidth int    `yaml:"max_width"` // downscale bound, 0 disables re-encode
		Quality  int    `yaml:"quality"`   // jpeg quality
	} `yaml:"images"`

	Cache struct {
		Dir        string        `yaml:"dir"`
		ArticleTTL time.Duration `yaml:"article_ttl"` // entry staleness bound
	} `yaml:"cache"`

	Run struct {
		Timeout       time.Duration `yaml:"timeout"`        // whole pass wall clock
		LookbackHours float64       `yaml:"lookback_hours"` // articles older than this are not rendered
		MaxItems      int           `yaml:"max_items"`      // rendered article bound
	} `yaml:"run"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults and validates
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 20 * time.Second
	}
	if c.Fetch.MaxConcurrent == 0 {
		c.Fetch.MaxConcurrent = 10
	}
	if c.Fetch.PerHost == 0 {
		c.Fetch.PerHost = 3
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = 3
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}

	if c.Extract.Timeout == 0 {
		c.Extract.Timeout = 30 * time.Second
	}
	if c.Extract.MinTextLength == 0 {
		c.Extract.MinTextLength = 100
	}

	if c.Images.Dir == "" {
		c.Images.Dir = "images"
	}
	if c.Images.MaxWidth == 0 {
		c.Images.MaxWidth = 1200
	}
	if c.Images.Quality == 0 {
		c.Images.Quality = 75
	}

	if c.Cache.Dir == "" {
		c.Cache.Dir = "data"
	}
	if c.Cache.ArticleTTL == 0 {
		c.Cache.ArticleTTL = 6 * time.Hour
	}

	if c.Run.Timeout == 0 {
		c.Run.Timeout = 10 * time.Minute
	}
	if c.Run.LookbackHours == 0 {
		c.Run.LookbackHours = 6
	}
	if c.Run.MaxItems == 0 {
		c.Run.MaxItems = 200
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]struct{}, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if src.URL == "" {
			return fmt.Errorf("source %q: url is required", src.Name)
		}
		if !src.Strategy.Valid() {
			return fmt.Errorf("source %q: unknown strategy %q", src.Name, src.Strategy)
		}
		if _, ok := seen[src.Name]; ok {
			return fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}

	if cfg.Fetch.Timeout < time.Second {
		return fmt.Errorf("fetch timeout must be at least 1 second")
	}
	if cfg.Fetch.PerHost > cfg.Fetch.MaxConcurrent {
		return fmt.Errorf("fetch per_host cap cannot exceed max_concurrent")
	}
	if cfg.Images.Quality < 1 || cfg.Images.Quality > 100 {
		return fmt.Errorf("images quality must be between 1 and 100")
	}
	if cfg.Run.Timeout < time.Second {
		return fmt.Errorf("run timeout must be at least 1 second")
	}
	return nil
}
