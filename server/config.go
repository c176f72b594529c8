package server

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Defaults applied by New when a Config field is left zero.
const (
	DefaultAuthorizationCodeTTL = 10 * time.Minute
	DefaultAccessTokenTTL       = time.Hour
)

// Config holds grant lifetimes and hashing parameters
type Config struct {
	// AuthorizationCodeTTL is how long an issued authorization code can be
	// exchanged. Default: 10 minutes
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is the lifetime of every issued access token and the
	// source of expires_in. Default: 1 hour
	AccessTokenTTL time.Duration

	// BcryptCost is the cost used to digest client secrets stored alongside
	// an authorization. Default: bcrypt.DefaultCost
	BcryptCost int
}

// applySecureDefaults returns a copy of config with defaults filled in.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	out := *config

	if out.AuthorizationCodeTTL == 0 {
		out.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if out.AccessTokenTTL == 0 {
		out.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if out.BcryptCost == 0 {
		out.BcryptCost = bcrypt.DefaultCost
	}

	if out.AuthorizationCodeTTL > time.Hour {
		logger.Warn("Long authorization code lifetime configured",
			"authorization_code_ttl", out.AuthorizationCodeTTL,
			"recommended_max", time.Hour)
	}

	return &out
}

// validate rejects lifetimes that cannot produce a positive expires_in.
func (c *Config) validate() error {
	if c.AuthorizationCodeTTL < time.Second {
		return fmt.Errorf("authorization code TTL must be at least 1s, got %s", c.AuthorizationCodeTTL)
	}
	if c.AccessTokenTTL < time.Second {
		return fmt.Errorf("access token TTL must be at least 1s, got %s", c.AccessTokenTTL)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	return nil
}
