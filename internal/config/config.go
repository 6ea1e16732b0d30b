// Package config loads and saves tinkerblog.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up by LoadFromDir.
const FileName = "tinkerblog.yaml"

// Config represents the tinkerblog configuration
type Config struct {
	Title        string          `yaml:"title"`
	PathPrefix   string          `yaml:"path_prefix"` // e.g. "/blog" when served below a sub path
	ContentDir   string          `yaml:"content_dir"` // markdown posts, relative to the site root
	StaticDir    string          `yaml:"static_dir"`  // avatar and other files served under /static/
	OutputDir    string          `yaml:"output_dir"`  // static export target for `build`
	SiteMetadata SiteMetadata    `yaml:"site_metadata"`
	Bio          BioConfig       `yaml:"bio"`
	Layout       LayoutConfig    `yaml:"layout"`
	Highlight    HighlightConfig `yaml:"highlight"`
	Sandbox      SandboxConfig   `yaml:"sandbox"`
	Server       ServerConfig    `yaml:"server"`
	Features     FeaturesConfig  `yaml:"features"`
	Ignore       []string        `yaml:"ignore"`
}

// SiteMetadata is the author information rendered by the bio widget.
type SiteMetadata struct {
	Author      string `yaml:"author"`
	Description string `yaml:"description"`
	SiteURL     string `yaml:"site_url"`
	Social      Social `yaml:"social"`
}

// Social holds social network handles.
type Social struct {
	Twitter string `yaml:"twitter"`
}

// BioConfig configures the bio widget
type BioConfig struct {
	Avatar   string `yaml:"avatar"`    // regular expression matched against files in StaticDir
	Summary  string `yaml:"summary"`   // text after the author name
	LinkText string `yaml:"link_text"` // social link label
	CacheTTL string `yaml:"cache_ttl"` // e.g. "5m"; empty disables caching
}

// GetCacheTTL returns the parsed cache TTL (0 if caching is disabled)
func (c BioConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// LayoutConfig configures the layout footer.
type LayoutConfig struct {
	BuiltWith Attribution `yaml:"built_with"`
}

// Attribution is the "Built with" footer link.
type Attribution struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// HighlightConfig configures static code highlighting
type HighlightConfig struct {
	Theme string `yaml:"theme"` // chroma style name, "oceanic-next" by default
}

// SandboxConfig configures the live code sandbox
type SandboxConfig struct {
	Timeout     string `yaml:"timeout"`       // per evaluation, default 2s
	GoEnabled   bool   `yaml:"go_enabled"`    // compile and run Go snippets through wazero
	GoBinary    string `yaml:"go_binary"`     // go toolchain used for compiling snippets
	SessionTTL  string `yaml:"session_ttl"`   // idle live sessions are dropped after this, default 1h
	MaxCodeSize int    `yaml:"max_code_size"` // bytes accepted per edit, default 64KiB
	MaxSessions int    `yaml:"max_sessions"`  // live blocks kept in memory, default 1000
}

// GetTimeout returns the evaluation timeout (default: 2s)
func (c SandboxConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 2*time.Second)
}

// GetSessionTTL returns the idle session lifetime (default: 1h)
func (c SandboxConfig) GetSessionTTL() time.Duration {
	return parseDurationOr(c.SessionTTL, time.Hour)
}

// GetMaxCodeSize returns the maximum accepted source size in bytes.
func (c SandboxConfig) GetMaxCodeSize() int {
	if c.MaxCodeSize <= 0 {
		return 64 << 10
	}
	return c.MaxCodeSize
}

// GetMaxSessions returns how many live blocks the server keeps (default: 1000)
func (c SandboxConfig) GetMaxSessions() int {
	if c.MaxSessions <= 0 {
		return 1000
	}
	return c.MaxSessions
}

// GetGoBinary returns the go toolchain binary (default: "go")
func (c SandboxConfig) GetGoBinary() string {
	if c.GoBinary == "" {
		return "go"
	}
	return c.GoBinary
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port      int             `yaml:"port"`
	Host      string          `yaml:"host"`
	Debug     bool            `yaml:"debug"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig limits live sandbox evaluations per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // default: 5
	Burst             int     `yaml:"burst,omitempty"`               // default: 10
}

// GetRPS returns the configured rate or the default.
func (c RateLimitConfig) GetRPS() float64 {
	if c.RequestsPerSecond <= 0 {
		return 5
	}
	return c.RequestsPerSecond
}

// GetBurst returns the configured burst or the default.
func (c RateLimitConfig) GetBurst() int {
	if c.Burst <= 0 {
		return 10
	}
	return c.Burst
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	HotReload bool `yaml:"hot_reload"`
	Drafts    bool `yaml:"drafts"` // include posts marked draft
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title:      "My Blog",
		ContentDir: "content/blog",
		StaticDir:  "static",
		OutputDir:  "public",
		SiteMetadata: SiteMetadata{
			Author: "Anonymous",
		},
		Bio: BioConfig{
			Avatar:   `profile\.(jpe?g|png|webp)$`,
			LinkText: "You should follow them on Twitter",
			CacheTTL: "5m",
		},
		Layout: LayoutConfig{
			BuiltWith: Attribution{
				Name: "tinkerblog",
				URL:  "https://github.com/livetemplate/tinkerblog",
			},
		},
		Highlight: HighlightConfig{
			Theme: "oceanic-next",
		},
		Sandbox: SandboxConfig{
			Timeout:    "2s",
			SessionTTL: "1h",
		},
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Features: FeaturesConfig{
			HotReload: true,
		},
		Ignore: []string{
			"drafts/**",
			"_*.md",
		},
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.ContentDir == "" {
		return fmt.Errorf("content_dir is required")
	}
	if c.PathPrefix != "" && !strings.HasPrefix(c.PathPrefix, "/") {
		return fmt.Errorf("path_prefix %q must start with /", c.PathPrefix)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// LoadFromDir looks for tinkerblog.yaml in the given directory.
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
