package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/egorkaBurkenya/rateshop/carriererr"
)

// Environment variables that override file settings.
const (
	EnvClientID      = "UPS_CLIENT_ID"
	EnvClientSecret  = "UPS_CLIENT_SECRET"
	EnvAccountNumber = "UPS_ACCOUNT_NUMBER"
	EnvBaseURL       = "UPS_BASE_URL"
	EnvTokenURL      = "UPS_TOKEN_URL"
	EnvAPIVersion    = "UPS_API_VERSION"
	EnvTimeout       = "HTTP_TIMEOUT"
	EnvMaxRetries    = "MAX_RETRIES"
	EnvRetryDelay    = "RETRY_DELAY_MS"
)

// DotEnvFile is read by Load when present.
const DotEnvFile = ".env"

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), the .env file in the working directory and the
// environment, in increasing precedence. It does not validate.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, carriererr.NewConfig("read config file", err)
		}
		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, carriererr.NewConfig("parse config file", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv sets variables from file without overriding the environment.
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return carriererr.NewConfig("load "+file, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.UPS.ClientID, EnvClientID)
	setString(&cfg.UPS.ClientSecret, EnvClientSecret)
	setString(&cfg.UPS.AccountNumber, EnvAccountNumber)
	setString(&cfg.UPS.BaseURL, EnvBaseURL)
	setString(&cfg.UPS.TokenURL, EnvTokenURL)
	setString(&cfg.UPS.APIVersion, EnvAPIVersion)

	if v, ok := os.LookupEnv(EnvTimeout); ok && v != "" {
		d, err := parseMillisOrDuration(v)
		if err != nil {
			return envErr(EnvTimeout, v, err)
		}
		cfg.HTTP.Timeout = d
	}
	if v, ok := os.LookupEnv(EnvMaxRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envErr(EnvMaxRetries, v, err)
		}
		cfg.HTTP.MaxRetries = n
	}
	if v, ok := os.LookupEnv(EnvRetryDelay); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return envErr(EnvRetryDelay, v, err)
		}
		cfg.HTTP.RetryDelay = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// parseMillisOrDuration accepts a bare integer as milliseconds or a Go
// duration string.
func parseMillisOrDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func envErr(key, val string, err error) error {
	return carriererr.NewConfig(fmt.Sprintf("invalid %s %q", key, val), err)
}
