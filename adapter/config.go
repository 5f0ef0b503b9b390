/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// Timing defaults for the request core
const (
	// DefaultSafetyBuffer is subtracted from the access token expiry when
	// deciding whether a refresh is needed. Large enough to cover one
	// outbound request plus clock drift.
	DefaultSafetyBuffer = 3 * time.Minute

	// DefaultRetryAfter is used when a 429 carries no usable Retry-After
	DefaultRetryAfter = 60 * time.Second

	// DefaultMaxAttempts is the retry ceiling for throttled calls
	DefaultMaxAttempts = 3

	// DefaultHTTPTimeout bounds each physical HTTP call
	DefaultHTTPTimeout = 30 * time.Second
)

// Region holds the endpoints for one upstream region
type Region struct {
	BaseURL  string `json:"baseURL"`
	TokenURL string `json:"tokenURL"`
}

// Config holds the adapter configuration
type Config struct {
	// Regions maps a region code to its endpoints
	Regions map[string]Region `json:"regions"`

	// ClientID and ClientSecret identify this application to the
	// authorization server during token refresh
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`

	// HTTPTimeoutSeconds bounds each physical call (default 30)
	HTTPTimeoutSeconds int `json:"httpTimeoutSeconds,omitempty"`

	// Retry controls 429 handling
	Retry RetryConfig `json:"retry,omitempty"`

	// RateLimit optionally throttles outbound calls client-side
	RateLimit RateLimitConfig `json:"rateLimit,omitempty"`

	// Sanitize provides the default sanitization policy
	Sanitize PolicyConfig `json:"sanitize,omitempty"`
}

// RetryConfig controls throttling behavior
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per logical call (default 3)
	MaxAttempts int `json:"maxAttempts,omitempty"`

	// DefaultRetryAfterSeconds is used when the upstream supplies no usable
	// retry hint (default 60)
	DefaultRetryAfterSeconds int `json:"defaultRetryAfterSeconds,omitempty"`
}

// RateLimitConfig optionally throttles outbound calls before they are sent
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled,omitempty"`
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty"`
	Burst             int     `json:"burst,omitempty"`
}

// PolicyConfig is the JSON form of the default sanitization policy
type PolicyConfig struct {
	MaskBankAccounts bool     `json:"maskBankAccounts"`
	MaskNationalIDs  bool     `json:"maskNationalIds"`
	MaskEmails       bool     `json:"maskEmails"`
	MaskPhones       bool     `json:"maskPhones"`
	ExcludeFields    []string `json:"excludeFields,omitempty"`
	CustomPatterns   []string `json:"customPatterns,omitempty"`
}

// DefaultRegions covers the regions the upstream platform operates in
func DefaultRegions() map[string]Region {
	regions := make(map[string]Region)
	for _, code := range []string{"nl", "be", "de", "fr", "es", "gb", "us"} {
		domain := fmt.Sprintf("start.exactonline.%s", regionTLD(code))
		regions[code] = Region{
			BaseURL:  fmt.Sprintf("https://%s", domain),
			TokenURL: fmt.Sprintf("https://%s/api/oauth2/token", domain),
		}
	}
	return regions
}

func regionTLD(code string) string {
	switch code {
	case "gb":
		return "co.uk"
	case "us":
		return "com"
	default:
		return code
	}
}

// envVarRegex matches ${VAR_NAME} references in configuration values
var envVarRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)}`)

// expandEnvVars replaces ${VAR} references with environment values and
// returns an error naming any unset variable
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string
	expanded := envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarRegex.FindSubmatch(match)[1]
		value, ok := os.LookupEnv(string(name))
		if !ok {
			missing = append(missing, string(name))
			return match
		}
		return []byte(value)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("environment variables not set: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// LoadConfig reads the adapter configuration from a JSON file, expanding
// ${ENV_VAR} references. Missing optional fields fall back to defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	config := &Config{}
	if err := json.Unmarshal(expanded, config); err != nil {
		return nil, fmt.Errorf("config file %s contains invalid JSON: %w", path, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyDefaults fills unset fields with their defaults
func (c *Config) applyDefaults() {
	if len(c.Regions) == 0 {
		c.Regions = DefaultRegions()
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = int(DefaultHTTPTimeout / time.Second)
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if c.Retry.DefaultRetryAfterSeconds <= 0 {
		c.Retry.DefaultRetryAfterSeconds = int(DefaultRetryAfter / time.Second)
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	for code, region := range c.Regions {
		if region.BaseURL == "" || region.TokenURL == "" {
			return fmt.Errorf("region %s must define baseURL and tokenURL", code)
		}
		if !strings.HasPrefix(region.BaseURL, "http://") && !strings.HasPrefix(region.BaseURL, "https://") {
			return fmt.Errorf("region %s baseURL must be an HTTP(S) URL", code)
		}
	}
	return nil
}

// RegionFor returns the endpoints for a region code
func (c *Config) RegionFor(code string) (Region, error) {
	region, ok := c.Regions[strings.ToLower(code)]
	if !ok {
		return Region{}, fmt.Errorf("unknown region %q", code)
	}
	return region, nil
}

// HTTPTimeout returns the per-call timeout as a duration
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// DefaultRetryDelay returns the fallback retry delay as a duration
func (c *Config) DefaultRetryDelay() time.Duration {
	return time.Duration(c.Retry.DefaultRetryAfterSeconds) * time.Second
}
