package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns a Config that passes Validate, for per-field
// mutation in the tests below.
func validConfig() *Config {
	return &Config{
		Model:             "gpt-4o-mini",
		APIKey:            "sk-test",
		InvocationStyle:   StyleManifest,
		StaleAfterMinutes: 120,
		TokenCeiling:      4000,
		MaxRounds:         20,
		MaxAutoReplies:    5,
		ResultCap:         4000,
		ResultTruncateTo:  3950,
		EditIntervalMs:    500,
		EditRetries:       3,
		Search: SearchConfig{
			BaseURL:    "https://google.serper.dev/search",
			MaxResults: 3,
		},
		WebScraper: WebScraperConfig{
			Parallelism: 2,
			DelayMs:     1000,
			TimeoutMs:   30000,
		},
	}
}

func TestValidateAcceptsReferenceDefaults(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestValidateNilConfig(t *testing.T) {
	t.Parallel()
	var c *Config
	assert.ErrorIs(t, c.Validate(), ErrConfigNil)
}

func TestValidateSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing api key", func(c *Config) { c.APIKey = "" }, ErrMissingAPIKey},
		{"empty model", func(c *Config) { c.Model = "" }, ErrInvalidModelName},
		{"unknown style", func(c *Config) { c.InvocationStyle = "telepathy" }, ErrInvalidInvocationStyle},
		{"zero staleness", func(c *Config) { c.StaleAfterMinutes = 0 }, ErrInvalidBound},
		{"zero ceiling", func(c *Config) { c.TokenCeiling = 0 }, ErrInvalidBound},
		{"rounds too high", func(c *Config) { c.MaxRounds = 500 }, ErrInvalidBound},
		{"zero auto replies", func(c *Config) { c.MaxAutoReplies = 0 }, ErrInvalidBound},
		{"zero edit interval", func(c *Config) { c.EditIntervalMs = 0 }, ErrInvalidBound},
		{"zero edit retries", func(c *Config) { c.EditRetries = 0 }, ErrInvalidBound},
		{"zero result cap", func(c *Config) { c.ResultCap = 0 }, ErrInvalidTruncation},
		{"truncate above cap", func(c *Config) { c.ResultTruncateTo = 4001 }, ErrInvalidTruncation},
		{"zero parallelism", func(c *Config) { c.WebScraper.Parallelism = 0 }, ErrInvalidWebScraper},
		{"negative delay", func(c *Config) { c.WebScraper.DelayMs = -1 }, ErrInvalidWebScraper},
		{"zero scrape timeout", func(c *Config) { c.WebScraper.TimeoutMs = 0 }, ErrInvalidWebScraper},
		{"too many search results", func(c *Config) { c.Search.MaxResults = 50 }, ErrInvalidBound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.want)
		})
	}
}

func TestValidateTagsStyle(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.InvocationStyle = StyleTags
	assert.NoError(t, c.Validate())
}

func TestMarshalJSONMasksSecrets(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.APIKey = "sk-very-secret-key"
	c.Search.APIKey = "serper-secret"

	out, err := json.Marshal(c)
	require.NoError(t, err)

	s := string(out)
	assert.NotContains(t, s, "sk-very-secret-key")
	assert.NotContains(t, s, "serper-secret")
	assert.True(t, strings.Contains(s, maskedValue))
	assert.Contains(t, s, "gpt-4o-mini", "non-sensitive fields survive")
}

func TestMarshalJSONLeavesEmptySecretsEmpty(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.APIKey = ""
	c.Search.APIKey = ""

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(out), maskedValue)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, StyleManifest, cfg.InvocationStyle)
	assert.Equal(t, 120, cfg.StaleAfterMinutes)
	assert.Equal(t, 4000, cfg.TokenCeiling)
	assert.Equal(t, 20, cfg.MaxRounds)
	assert.Equal(t, 5, cfg.MaxAutoReplies)
	assert.Equal(t, 4000, cfg.ResultCap)
	assert.Equal(t, 3950, cfg.ResultTruncateTo)
	assert.Equal(t, 500, cfg.EditIntervalMs)
	assert.Equal(t, 3, cfg.EditRetries)
	assert.Equal(t, 2, cfg.WebScraper.Parallelism)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PARLEY_MODEL", "gpt-4o")
	t.Setenv("PARLEY_INVOCATION_STYLE", StyleTags)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, StyleTags, cfg.InvocationStyle)
}

func TestLoadFailsWithoutAPIKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
