// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.parley/config.yaml)
//  3. Default values
//
// The policy constants of the relay (staleness threshold, token ceiling,
// round ceilings, result truncation caps, edit cadence) are deliberately
// plain named fields here rather than constants buried in the packages that
// consume them, so deployments can tune them without a rebuild.
//
// Error handling uses sentinel errors checked with errors.Is(), wrapped
// with fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the completion endpoint API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidInvocationStyle indicates an unknown tool invocation style.
	ErrInvalidInvocationStyle = errors.New("invalid invocation style")

	// ErrInvalidBound indicates a policy bound is out of range.
	ErrInvalidBound = errors.New("invalid policy bound")

	// ErrInvalidTruncation indicates the result truncation caps are
	// inconsistent.
	ErrInvalidTruncation = errors.New("invalid truncation caps")

	// ErrInvalidWebScraper indicates the web scraper settings are out of
	// range.
	ErrInvalidWebScraper = errors.New("invalid web scraper settings")
)

// Invocation style identifiers used in Config.InvocationStyle.
const (
	StyleManifest = "manifest"
	StyleTags     = "tags"
)

// SearchConfig configures the web search tool. An empty APIKey disables
// the tool rather than failing validation.
type SearchConfig struct {
	BaseURL    string `mapstructure:"base_url" json:"base_url"`
	APIKey     string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	MaxResults int    `mapstructure:"max_results" json:"max_results"`
}

// WebScraperConfig configures the page loading tool.
type WebScraperConfig struct {
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	DelayMs     int `mapstructure:"delay_ms" json:"delay_ms"`
	TimeoutMs   int `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Completion endpoint
	Model   string `mapstructure:"model" json:"model"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	APIKey  string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON

	// Tool invocation style: "manifest" (function manifest) or "tags"
	// (inline bracket directives taught via the system prompt).
	InvocationStyle string `mapstructure:"invocation_style" json:"invocation_style"`

	// Access control. Empty admits every caller.
	AllowedUserIDs []string `mapstructure:"allowed_user_ids" json:"allowed_user_ids"`

	// System prompt pieces
	Intro        string `mapstructure:"intro" json:"intro"`
	HowToRespond string `mapstructure:"how_to_respond" json:"how_to_respond"`

	// Conversation policy
	StaleAfterMinutes int `mapstructure:"stale_after_minutes" json:"stale_after_minutes"`
	TokenCeiling      int `mapstructure:"token_ceiling" json:"token_ceiling"`
	MaxRounds         int `mapstructure:"max_rounds" json:"max_rounds"`
	MaxAutoReplies    int `mapstructure:"max_auto_replies" json:"max_auto_replies"`

	// Tool result caps
	ResultCap        int `mapstructure:"result_cap" json:"result_cap"`
	ResultTruncateTo int `mapstructure:"result_truncate_to" json:"result_truncate_to"`

	// Live message edit cadence
	EditIntervalMs int `mapstructure:"edit_interval_ms" json:"edit_interval_ms"`
	EditRetries    int `mapstructure:"edit_retries" json:"edit_retries"`

	// Tool configuration
	Search     SearchConfig     `mapstructure:"search" json:"search"`
	WebScraper WebScraperConfig `mapstructure:"web_scraper" json:"web_scraper"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".parley")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values. The conversation
// policy defaults mirror the reference behavior the relay was tuned
// against.
func setDefaults() {
	viper.SetDefault("model", "gpt-4o-mini")
	viper.SetDefault("base_url", "")
	viper.SetDefault("invocation_style", StyleManifest)

	viper.SetDefault("stale_after_minutes", 120)
	viper.SetDefault("token_ceiling", 4000)
	viper.SetDefault("max_rounds", 20)
	viper.SetDefault("max_auto_replies", 5)

	viper.SetDefault("result_cap", 4000)
	viper.SetDefault("result_truncate_to", 3950)

	viper.SetDefault("edit_interval_ms", 500)
	viper.SetDefault("edit_retries", 3)

	viper.SetDefault("search.base_url", "https://google.serper.dev/search")
	viper.SetDefault("search.max_results", 3)

	viper.SetDefault("web_scraper.parallelism", 2)
	viper.SetDefault("web_scraper.delay_ms", 1000)
	viper.SetDefault("web_scraper.timeout_ms", 30000)
}

// bindEnvVariables binds environment variables explicitly. Secrets are
// env-only; the rest are overridable conveniences.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("search.api_key", "SERPER_API_KEY")

	mustBind("model", "PARLEY_MODEL")
	mustBind("base_url", "PARLEY_BASE_URL")
	mustBind("invocation_style", "PARLEY_INVOCATION_STYLE")
	mustBind("allowed_user_ids", "PARLEY_ALLOWED_USER_IDS")
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.APIKey == "" {
		return fmt.Errorf("%w: set OPENAI_API_KEY or openai_api_key in the config file", ErrMissingAPIKey)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model cannot be empty", ErrInvalidModelName)
	}

	if c.InvocationStyle != StyleManifest && c.InvocationStyle != StyleTags {
		return fmt.Errorf("%w: %q (want %q or %q)",
			ErrInvalidInvocationStyle, c.InvocationStyle, StyleManifest, StyleTags)
	}

	if c.StaleAfterMinutes < 1 {
		return fmt.Errorf("%w: stale_after_minutes must be positive, got %d", ErrInvalidBound, c.StaleAfterMinutes)
	}
	if c.TokenCeiling < 1 {
		return fmt.Errorf("%w: token_ceiling must be positive, got %d", ErrInvalidBound, c.TokenCeiling)
	}
	if c.MaxRounds < 1 || c.MaxRounds > 100 {
		return fmt.Errorf("%w: max_rounds must be between 1 and 100, got %d", ErrInvalidBound, c.MaxRounds)
	}
	if c.MaxAutoReplies < 1 || c.MaxAutoReplies > 100 {
		return fmt.Errorf("%w: max_auto_replies must be between 1 and 100, got %d", ErrInvalidBound, c.MaxAutoReplies)
	}
	if c.EditIntervalMs < 1 {
		return fmt.Errorf("%w: edit_interval_ms must be positive, got %d", ErrInvalidBound, c.EditIntervalMs)
	}
	if c.EditRetries < 1 {
		return fmt.Errorf("%w: edit_retries must be positive, got %d", ErrInvalidBound, c.EditRetries)
	}

	if c.ResultCap < 1 {
		return fmt.Errorf("%w: result_cap must be positive, got %d", ErrInvalidTruncation, c.ResultCap)
	}
	if c.ResultTruncateTo < 1 || c.ResultTruncateTo > c.ResultCap {
		return fmt.Errorf("%w: result_truncate_to must be between 1 and result_cap (%d), got %d",
			ErrInvalidTruncation, c.ResultCap, c.ResultTruncateTo)
	}

	if c.WebScraper.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism must be positive, got %d", ErrInvalidWebScraper, c.WebScraper.Parallelism)
	}
	if c.WebScraper.DelayMs < 0 {
		return fmt.Errorf("%w: delay_ms cannot be negative, got %d", ErrInvalidWebScraper, c.WebScraper.DelayMs)
	}
	if c.WebScraper.TimeoutMs < 1 {
		return fmt.Errorf("%w: timeout_ms must be positive, got %d", ErrInvalidWebScraper, c.WebScraper.TimeoutMs)
	}

	if c.Search.MaxResults < 1 || c.Search.MaxResults > 10 {
		return fmt.Errorf("%w: search.max_results must be between 1 and 10, got %d", ErrInvalidBound, c.Search.MaxResults)
	}

	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking, so a logged config never leaks keys.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	if masked.APIKey != "" {
		masked.APIKey = maskedValue
	}
	if masked.Search.APIKey != "" {
		masked.Search.APIKey = maskedValue
	}
	return json.Marshal(masked)
}
