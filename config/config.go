// Package config loads rateshop settings from YAML, an optional .env file
// and the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/egorkaBurkenya/rateshop/carriererr"
)

// Defaults.
const (
	DefaultBaseURL     = "https://wwwcie.ups.com"
	DefaultAPIVersion  = "v2409"
	DefaultAuthTimeout = 10 * time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	MaxRetriesLimit    = 10
	DefaultRetryDelay  = time.Second

	tokenPath = "/security/v1/oauth/token"
)

// Config is the top-level configuration.
type Config struct {
	UPS     UPSConfig     `yaml:"ups"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// UPSConfig holds the UPS account, credentials and endpoints.
type UPSConfig struct {
	ClientID          string `yaml:"client_id"`
	ClientSecret      string `yaml:"client_secret"`
	AccountNumber     string `yaml:"account_number"`
	BaseURL           string `yaml:"base_url"`
	TokenURL          string `yaml:"token_url"` // defaults to BaseURL + /security/v1/oauth/token
	APIVersion        string `yaml:"api_version"`
	ShipperName       string `yaml:"shipper_name"`
	TransactionSource string `yaml:"transaction_source"`
}

// HTTPConfig holds transport settings shared by the token and rating calls.
type HTTPConfig struct {
	Timeout     time.Duration `yaml:"timeout"`      // rating calls
	AuthTimeout time.Duration `yaml:"auth_timeout"` // token exchange
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	RateLimit   float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst   int           `yaml:"rate_burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Default returns a Config with every default applied and no credentials.
func Default() Config {
	return Config{
		UPS: UPSConfig{
			BaseURL:    DefaultBaseURL,
			APIVersion: DefaultAPIVersion,
		},
		HTTP: HTTPConfig{
			Timeout:     DefaultTimeout,
			AuthTimeout: DefaultAuthTimeout,
			MaxRetries:  DefaultMaxRetries,
			RetryDelay:  DefaultRetryDelay,
			RateBurst:   1,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// ParseLevel maps a logging level name to a slog level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q (want debug, info, warn or error)", name)
	}
}

// ResolvedTokenURL returns TokenURL, or the UPS OAuth path under BaseURL.
func (u UPSConfig) ResolvedTokenURL() string {
	if u.TokenURL != "" {
		return u.TokenURL
	}
	return strings.TrimRight(u.BaseURL, "/") + tokenPath
}

// Validate reports every missing or invalid setting as one KindConfig
// error. Settings are named by their environment variable.
func (c Config) Validate() error {
	var problems []string
	if c.UPS.ClientID == "" {
		problems = append(problems, EnvClientID+" is required")
	}
	if c.UPS.ClientSecret == "" {
		problems = append(problems, EnvClientSecret+" is required")
	}
	if c.UPS.AccountNumber == "" {
		problems = append(problems, EnvAccountNumber+" is required")
	}
	if c.UPS.BaseURL == "" {
		problems = append(problems, EnvBaseURL+" is required")
	}
	if c.HTTP.Timeout <= 0 {
		problems = append(problems, EnvTimeout+" must be positive")
	}
	if c.HTTP.AuthTimeout <= 0 {
		problems = append(problems, "http.auth_timeout must be positive")
	}
	if c.HTTP.MaxRetries < 0 || c.HTTP.MaxRetries > MaxRetriesLimit {
		problems = append(problems, fmt.Sprintf("%s must be between 0 and %d", EnvMaxRetries, MaxRetriesLimit))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, "logging.level: "+err.Error())
	}
	if c.HTTP.RetryDelay < 0 {
		problems = append(problems, EnvRetryDelay+" must not be negative")
	}
	if len(problems) > 0 {
		return carriererr.NewConfig("invalid configuration: "+strings.Join(problems, "; "), nil)
	}
	return nil
}
