// Package config provides JWT configuration functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// JWTConfig holds configuration for control-API token validation. An empty
// Secret disables authentication.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// Enabled reports whether mutating endpoints require a token.
func (c *JWTConfig) Enabled() bool {
	return c != nil && c.Secret != ""
}

// NewJWTConfig creates a JWT configuration from environment variables.
// It reads NETMIRROR_API_SECRET (optional) and NETMIRROR_API_TOKEN_HOURS
// (default: 24).
func NewJWTConfig() (*JWTConfig, error) {
	secret := os.Getenv("NETMIRROR_API_SECRET")

	expirationStr := os.Getenv("NETMIRROR_API_TOKEN_HOURS")
	if expirationStr == "" {
		expirationStr = "24" // default
	}

	expirationHours, err := strconv.Atoi(expirationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid NETMIRROR_API_TOKEN_HOURS: %v", err)
	}

	config := &JWTConfig{
		Secret:          secret,
		ExpirationHours: expirationHours,
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.ExpirationHours < 1 {
		return fmt.Errorf("NETMIRROR_API_TOKEN_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	if c.Secret != "" && len(c.Secret) < 16 {
		return fmt.Errorf("NETMIRROR_API_SECRET must be at least 16 characters")
	}
	return nil
}
