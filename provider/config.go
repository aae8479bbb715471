package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default backend settings.
const (
	DefaultGatewayURL  = "http://localhost:4000/v1/chat/completions"
	DefaultSearchURL   = "https://api.perplexity.ai"
	DefaultTimeout     = 120 * time.Second
	DefaultMaxResults  = 5
	DefaultSearchModel = "sonar-medium-online"
)

// Config holds settings for one HTTP backend.
type Config struct {
	// URL is the backend endpoint. For the chat backend a bare base URL gets
	// "/chat/completions" appended; for search "/search" is appended.
	URL string `json:"url" yaml:"url" mapstructure:"url"`

	// APIKey is sent as a Bearer token when set.
	APIKey string `json:"api_key" yaml:"api_key" mapstructure:"api_key"`

	// Timeout bounds a single HTTP exchange when the caller's context has no
	// deadline. A deadline on the context always wins, longer or shorter.
	// Zero uses DefaultTimeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxResults caps search results. Search backend only.
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// Models maps council aliases to backend model ids. Search backend only;
	// unmapped aliases use DefaultSearchModel.
	Models map[string]string `json:"models" yaml:"models" mapstructure:"models"`

	// Headers are extra request headers.
	Headers map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`
}

// DefaultConfig returns the chat backend defaults.
func DefaultConfig() Config {
	return Config{
		URL:     DefaultGatewayURL,
		Timeout: DefaultTimeout,
	}
}

// DefaultSearchConfig returns the search backend defaults.
func DefaultSearchConfig() Config {
	return Config{
		URL:        DefaultSearchURL,
		Timeout:    30 * time.Second,
		MaxResults: DefaultMaxResults,
		Models: map[string]string{
			"perplexity-researcher": "sonar-small-online",
			"perplexity-online":     "sonar-medium-online",
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("url is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("url %q must be http or https", c.URL)
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be non-negative")
	}
	if c.MaxResults < 0 {
		return errors.New("max_results must be non-negative")
	}
	return nil
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// endpoint normalizes base and appends suffix exactly once.
func endpoint(base, suffix string) string {
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, suffix)
	return base + suffix
}
