// Package telegram provides the protocol client used by the pipeline: a
// member source for the scrape path and an inviter for the distribution
// path, both driven through the request engine.
package telegram

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultAPIEndpoint is the default base URL for the platform API
	DefaultAPIEndpoint = "https://api.telegram.org"
	// DefaultRequestTimeout is the default per-request timeout in seconds
	DefaultRequestTimeout = 30
	// DefaultMembersPerRequest is the default page size for member fetches
	DefaultMembersPerRequest = 10
)

// Config holds the platform client settings.
// Environment variables:
//   - TELEGRAM_API_ENDPOINT: base API URL (default: https://api.telegram.org)
//   - TELEGRAM_BOT_TOKEN: bot token used by the invite path
//   - TELEGRAM_REQUEST_TIMEOUT: per-request timeout in seconds (default: 30)
//   - TELEGRAM_MEMBERS_PER_REQUEST: member page size (default: 10)
type Config struct {
	// APIEndpoint is the base URL for the platform API
	APIEndpoint string
	// BotToken authorizes the invite path; may be empty when the
	// distribution step is disabled
	BotToken string
	// RequestTimeout is the duration to wait before timing out requests
	RequestTimeout time.Duration
	// MembersPerRequest is the page size for member fetches
	MembersPerRequest int
	// Logger is the configured logrus logger instance
	Logger *logrus.Logger
}

// NewConfig creates a Config from environment variables, falling back to
// defaults. The .env file is loaded if present; its absence is not an error.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("telegram: loading .env file: %w", err)
		}
	}

	timeout := DefaultRequestTimeout
	if s := os.Getenv("TELEGRAM_REQUEST_TIMEOUT"); s != "" {
		if t, err := strconv.Atoi(s); err == nil {
			timeout = t
		} else {
			logrus.WithFields(logrus.Fields{
				"value":   s,
				"default": DefaultRequestTimeout,
			}).Debug("Failed to parse request timeout, using default")
		}
	}

	perRequest := DefaultMembersPerRequest
	if s := os.Getenv("TELEGRAM_MEMBERS_PER_REQUEST"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			perRequest = n
		} else {
			logrus.WithFields(logrus.Fields{
				"value":   s,
				"default": DefaultMembersPerRequest,
			}).Debug("Failed to parse members per request, using default")
		}
	}

	config := &Config{
		APIEndpoint:       getEnvOrDefault("TELEGRAM_API_ENDPOINT", DefaultAPIEndpoint),
		BotToken:          os.Getenv("TELEGRAM_BOT_TOKEN"),
		RequestTimeout:    time.Duration(timeout) * time.Second,
		MembersPerRequest: perRequest,
		Logger:            logrus.StandardLogger(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.APIEndpoint == "" {
		return fmt.Errorf("telegram: API endpoint is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("telegram: logger is required")
	}
	if c.RequestTimeout < 1*time.Second {
		return fmt.Errorf("telegram: request timeout must be at least 1 second, got %v", c.RequestTimeout)
	}
	if c.MembersPerRequest < 1 {
		return fmt.Errorf("telegram: members per request must be positive, got %d", c.MembersPerRequest)
	}
	return nil
}

// getEnvOrDefault retrieves an environment variable value by key,
// returning the defaultValue if the variable is not set or empty.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
