package oauth

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/server"
	"github.com/giantswarm/oauth2-server/storage"
)

// Defaults applied by New
const (
	DefaultPathPrefix      = "/oauth"
	DefaultCleanupInterval = time.Minute
)

// Config holds the authorization server configuration
type Config struct {
	// DatabasePath is the SQLite file holding grants and tokens. It is
	// created and migrated if needed. Exactly one of DatabasePath and
	// Backend must be set.
	DatabasePath string

	// Backend is a ready storage backend, e.g. memory.New() or
	// sqlite.NewStore(db) over an existing handle. The server takes
	// ownership and closes it on Close.
	Backend storage.Backend

	// Clients is the static client registry (required, non-empty).
	// Use LoadClients to read it from a YAML file.
	Clients map[string]server.Client

	// AuthorizationCodeTTL is how long authorization codes are valid
	// Default: 10 minutes
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is how long access tokens are valid
	// Default: 1 hour
	AccessTokenTTL time.Duration

	// BcryptCost is the cost of the client secret digest stored with each
	// authorization. Default: bcrypt.DefaultCost
	BcryptCost int

	// PathPrefix is where the authorization and token endpoints are mounted
	// by RegisterRoutes and Handler. Default: "/oauth"
	PathPrefix string

	// RateLimit configures per-IP rate limiting of the endpoints and the
	// ValidateToken middleware. A zero Rate disables limiting.
	RateLimit security.RateLimitConfig

	// Security settings
	Security SecurityConfig

	// Instrumentation enables OpenTelemetry metrics and tracing. It is owned
	// by the caller, who shuts it down after Close. Nil disables it.
	Instrumentation *instrumentation.Instrumentation

	// CleanupInterval is how often expired codes and access tokens are
	// purged. Default: 1 minute. A negative value disables the purge.
	CleanupInterval time.Duration

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// SecurityConfig holds security settings (secure by default)
type SecurityConfig struct {
	// EnableAuditLogging enables the security audit trail.
	// Identifiers linked to credentials are hashed; credentials are never logged.
	EnableAuditLogging bool

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of the server.
	// Default: 1
	TrustedProxyCount int
}

// applyDefaults returns a copy of c with defaults filled in.
func (c *Config) applyDefaults() *Config {
	out := *c

	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.PathPrefix == "" {
		out.PathPrefix = DefaultPathPrefix
	}
	out.PathPrefix = "/" + strings.Trim(out.PathPrefix, "/")
	if out.CleanupInterval == 0 {
		out.CleanupInterval = DefaultCleanupInterval
	}
	if out.Security.TrustProxy {
		out.Logger.Warn("Trusting proxy headers for client IPs",
			"risk", "IP spoofing if proxy is not properly configured",
			"trusted_proxy_count", out.Security.TrustedProxyCount)
	}

	return &out
}

// validate checks the settings New cannot default.
func (c *Config) validate() error {
	var errs []error

	switch {
	case c.DatabasePath == "" && c.Backend == nil:
		errs = append(errs, errors.New("one of DatabasePath and Backend is required"))
	case c.DatabasePath != "" && c.Backend != nil:
		errs = append(errs, errors.New("DatabasePath and Backend are mutually exclusive"))
	}

	if len(c.Clients) == 0 {
		errs = append(errs, errors.New("at least one client is required"))
	}
	for id, client := range c.Clients {
		if id == "" {
			errs = append(errs, errors.New("client ID must not be empty"))
		}
		if client.ClientSecret == "" || client.RedirectURI == "" {
			errs = append(errs, errors.New("client "+id+": client secret and redirect URI are required"))
		}
	}

	if c.RateLimit.Rate < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}

	return errors.Join(errs...)
}

// serverConfig extracts the grant settings for the server package.
func (c *Config) serverConfig() *server.Config {
	return &server.Config{
		AuthorizationCodeTTL: c.AuthorizationCodeTTL,
		AccessTokenTTL:       c.AccessTokenTTL,
		BcryptCost:           c.BcryptCost,
	}
}

// proxyConfig extracts client IP resolution settings.
func (c *Config) proxyConfig() security.ProxyConfig {
	return security.ProxyConfig{
		Trust:        c.Security.TrustProxy,
		TrustedCount: c.Security.TrustedProxyCount,
	}
}
