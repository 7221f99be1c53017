// Package config holds the rule service configuration and its loader.
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	defaultServiceName    = "rule-service"
	defaultServiceVersion = "1.0.0"
	defaultServicePort    = 8080
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultRulesRoot      = "amministrazione-trasparente"
	defaultMaxUnitLength  = 1000
	defaultMaxPageLength  = 10 * 1024 * 1024
	defaultBrowserTimeout = 60 * time.Second
	defaultBrowserRate    = 2.0

	// DefaultAnchorRegex matches an anchor element, capturing its attribute block and inner markup.
	DefaultAnchorRegex = `(?is)<a\b(?<attrs>[^>]*)>(?<text>.*?)</a\s*>`
	// DefaultHrefRegex extracts the href value out of an attribute block.
	DefaultHrefRegex = `(?i)\bhref\s*=\s*["']?(?<href>[^"'\s>]*)`
	// DefaultSearchTokens lists the token boundary characters of the analyzer.
	DefaultSearchTokens = " \t\r\n\u00a0.,;:!?'\"’‘“”()[]{}<>/\\|-_=+*&%$#@~^`«»–—…"
)

// Stage names accepted in matcher.stages.
const (
	StagePattern    = "pattern"
	StageDOM        = "dom"
	StageBrowser    = "browser"
	StageDOMAllTags = "dom_all_tags"
)

// Config holds all configuration for the rule service.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Logging LoggingConfig `yaml:"logging"`
	Auth    AuthConfig    `yaml:"auth"`
	Rules   RulesConfig   `yaml:"rules"`
	Extract ExtractConfig `yaml:"extract"`
	Search  SearchConfig  `yaml:"search"`
	Matcher MatcherConfig `yaml:"matcher"`
	Browser BrowserConfig `yaml:"browser"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"RULES_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"  yaml:"debug"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// AuthConfig holds authentication configuration. An empty secret leaves the API open.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// RulesConfig locates the rule catalog definition.
// Definitions wins over File; when both are empty the embedded catalog is used.
type RulesConfig struct {
	Root        string    `env:"RULES_ROOT" yaml:"root"`
	File        string    `env:"RULES_FILE" yaml:"file"`
	Definitions yaml.Node `yaml:"definitions"`
}

// HasDefinitions reports whether the rules were declared inline in the config file.
func (r *RulesConfig) HasDefinitions() bool {
	return r.Definitions.Kind != 0
}

// ExtractConfig configures the content-unit extractors.
type ExtractConfig struct {
	AnchorRegex   string   `env:"RULES_ANCHOR_REGEX"   yaml:"anchor_regex"`
	HrefRegex     string   `env:"RULES_HREF_REGEX"     yaml:"href_regex"`
	TagAttributes []string `env:"RULES_TAG_ATTRIBUTES" yaml:"tag_attributes"`
}

// SearchConfig configures the per-request search engine.
type SearchConfig struct {
	Tokens           string `yaml:"tokens"`
	MaxLengthContent int    `env:"RULES_MAX_LENGTH_CONTENT" yaml:"max_length_content"`
}

// MatcherConfig configures the rule matcher.
type MatcherConfig struct {
	MaxPageLength int      `env:"RULES_MAX_PAGE_LENGTH" yaml:"max_page_length"`
	BannedURLs    []string `env:"RULES_BANNED_URLS"     yaml:"banned_urls"`
	Stages        []string `yaml:"stages"`
}

// BrowserConfig configures the headless browser extractor.
type BrowserConfig struct {
	Enabled       bool          `env:"BROWSER_ENABLED"    yaml:"enabled"`
	RemoteURL     string        `env:"BROWSER_REMOTE_URL" yaml:"remote_url"`
	Arguments     []string      `yaml:"arguments"`
	PageTimeout   time.Duration `yaml:"page_timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return loadFile[Config](path, SetDefaults)
}

// Default returns a configuration made only of defaults and environment overrides.
func Default() *Config {
	cfg := &Config{}
	applyEnvOverrides(cfg)
	SetDefaults(cfg)
	return cfg
}

// SetDefaults applies default values to the config.
func SetDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat
	}
	if cfg.Rules.Root == "" {
		cfg.Rules.Root = defaultRulesRoot
	}
	setExtractDefaults(&cfg.Extract)
	if cfg.Search.Tokens == "" {
		cfg.Search.Tokens = DefaultSearchTokens
	}
	if cfg.Search.MaxLengthContent == 0 {
		cfg.Search.MaxLengthContent = defaultMaxUnitLength
	}
	setMatcherDefaults(&cfg.Matcher, cfg.Browser.Enabled)
	setBrowserDefaults(&cfg.Browser)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setExtractDefaults(e *ExtractConfig) {
	if e.AnchorRegex == "" {
		e.AnchorRegex = DefaultAnchorRegex
	}
	if e.HrefRegex == "" {
		e.HrefRegex = DefaultHrefRegex
	}
	if len(e.TagAttributes) == 0 {
		e.TagAttributes = []string{"title", "aria-label", "alt"}
	}
}

func setMatcherDefaults(m *MatcherConfig, browser bool) {
	if m.MaxPageLength == 0 {
		m.MaxPageLength = defaultMaxPageLength
	}
	if len(m.Stages) == 0 {
		m.Stages = []string{StagePattern, StageDOM}
		if browser {
			m.Stages = append(m.Stages, StageBrowser)
		}
		m.Stages = append(m.Stages, StageDOMAllTags)
	}
}

func setBrowserDefaults(b *BrowserConfig) {
	if b.PageTimeout == 0 {
		b.PageTimeout = defaultBrowserTimeout
	}
	if b.RatePerSecond == 0 {
		b.RatePerSecond = defaultBrowserRate
	}
	if len(b.Arguments) == 0 {
		b.Arguments = []string{"headless", "disable-gpu", "no-sandbox"}
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		errs = append(errs, &ValidationError{Field: "service.port", Message: "must be between 1 and 65535"})
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, &ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error"})
	}
	if c.Extract.AnchorRegex == "" {
		errs = append(errs, &ValidationError{Field: "extract.anchor_regex", Message: "is required"})
	}
	if c.Extract.HrefRegex == "" {
		errs = append(errs, &ValidationError{Field: "extract.href_regex", Message: "is required"})
	}
	if c.Search.MaxLengthContent < 1 {
		errs = append(errs, &ValidationError{Field: "search.max_length_content", Message: "must be positive"})
	}
	if c.Matcher.MaxPageLength < 1 {
		errs = append(errs, &ValidationError{Field: "matcher.max_page_length", Message: "must be positive"})
	}
	for _, stage := range c.Matcher.Stages {
		switch stage {
		case StagePattern, StageDOM, StageDOMAllTags:
		case StageBrowser:
			if !c.Browser.Enabled {
				errs = append(errs, &ValidationError{Field: "matcher.stages", Message: "browser stage requires browser.enabled"})
			}
		default:
			errs = append(errs, &ValidationError{Field: "matcher.stages", Message: fmt.Sprintf("unknown stage %q", stage)})
		}
	}
	return errors.Join(errs...)
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
