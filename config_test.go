package oauth

import (
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-server/internal/testutil"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/server"
	"github.com/giantswarm/oauth2-server/storage/memory"
)

func testClients() map[string]server.Client {
	return map[string]server.Client{
		testutil.TestClientID: {
			ClientSecret: testutil.TestClientSecret,
			RedirectURI:  testutil.TestRedirectURI,
		},
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	config := &Config{}
	got := config.applyDefaults()

	if got == config {
		t.Fatal("applyDefaults() should return a copy")
	}
	if config.PathPrefix != "" {
		t.Errorf("original PathPrefix was modified to %q", config.PathPrefix)
	}
	if got.Logger == nil {
		t.Error("Logger should default to slog.Default()")
	}
	if got.PathPrefix != DefaultPathPrefix {
		t.Errorf("PathPrefix = %q, want %q", got.PathPrefix, DefaultPathPrefix)
	}
	if got.CleanupInterval != DefaultCleanupInterval {
		t.Errorf("CleanupInterval = %v, want %v", got.CleanupInterval, DefaultCleanupInterval)
	}
}

func TestConfig_ApplyDefaults_PathPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "/oauth"},
		{"/oauth", "/oauth"},
		{"oauth", "/oauth"},
		{"/oauth/", "/oauth"},
		{"/api/v1/auth/", "/api/v1/auth"},
		{"/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got := (&Config{PathPrefix: tt.prefix}).applyDefaults()
			if got.PathPrefix != tt.want {
				t.Errorf("PathPrefix = %q, want %q", got.PathPrefix, tt.want)
			}
		})
	}
}

func TestConfig_ApplyDefaults_KeepsExplicitValues(t *testing.T) {
	config := &Config{
		CleanupInterval: -1,
		AccessTokenTTL:  5 * time.Minute,
	}
	got := config.applyDefaults()

	if got.CleanupInterval != -1 {
		t.Errorf("CleanupInterval = %v, want -1", got.CleanupInterval)
	}
	if got.AccessTokenTTL != 5*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 5m", got.AccessTokenTTL)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantError string
	}{
		{
			name:   "valid with database path",
			config: Config{DatabasePath: "oauth.db", Clients: testClients()},
		},
		{
			name:   "valid with backend",
			config: Config{Backend: memory.New(), Clients: testClients()},
		},
		{
			name:      "no storage",
			config:    Config{Clients: testClients()},
			wantError: "one of DatabasePath and Backend is required",
		},
		{
			name:      "both storages",
			config:    Config{DatabasePath: "oauth.db", Backend: memory.New(), Clients: testClients()},
			wantError: "mutually exclusive",
		},
		{
			name:      "no clients",
			config:    Config{DatabasePath: "oauth.db"},
			wantError: "at least one client is required",
		},
		{
			name: "empty client ID",
			config: Config{DatabasePath: "oauth.db", Clients: map[string]server.Client{
				"": {ClientSecret: "s", RedirectURI: "https://a.example.com/cb"},
			}},
			wantError: "client ID must not be empty",
		},
		{
			name: "missing secret",
			config: Config{DatabasePath: "oauth.db", Clients: map[string]server.Client{
				"app": {RedirectURI: "https://a.example.com/cb"},
			}},
			wantError: "client app: client secret and redirect URI are required",
		},
		{
			name: "missing redirect URI",
			config: Config{DatabasePath: "oauth.db", Clients: map[string]server.Client{
				"app": {ClientSecret: "s"},
			}},
			wantError: "client app: client secret and redirect URI are required",
		},
		{
			name: "negative rate",
			config: Config{
				DatabasePath: "oauth.db",
				Clients:      testClients(),
				RateLimit:    security.RateLimitConfig{Rate: -1},
			},
			wantError: "rate limit must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.validate()
			if tt.wantError == "" {
				if err != nil {
					t.Fatalf("validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("validate() expected error containing %q", tt.wantError)
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("validate() error = %q, want it to contain %q", err.Error(), tt.wantError)
			}
		})
	}
}

func TestConfig_Validate_ReportsAllProblems(t *testing.T) {
	err := (&Config{RateLimit: security.RateLimitConfig{Rate: -1}}).validate()
	if err == nil {
		t.Fatal("validate() expected error")
	}
	for _, want := range []string{"DatabasePath", "at least one client", "rate limit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validate() error = %q, want it to mention %q", err.Error(), want)
		}
	}
}

func TestConfig_ServerConfig(t *testing.T) {
	config := &Config{
		AuthorizationCodeTTL: 2 * time.Minute,
		AccessTokenTTL:       30 * time.Minute,
		BcryptCost:           5,
	}
	got := config.serverConfig()

	if got.AuthorizationCodeTTL != 2*time.Minute {
		t.Errorf("AuthorizationCodeTTL = %v, want 2m", got.AuthorizationCodeTTL)
	}
	if got.AccessTokenTTL != 30*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 30m", got.AccessTokenTTL)
	}
	if got.BcryptCost != 5 {
		t.Errorf("BcryptCost = %d, want 5", got.BcryptCost)
	}
}

func TestConfig_ProxyConfig(t *testing.T) {
	config := &Config{Security: SecurityConfig{TrustProxy: true, TrustedProxyCount: 2}}
	got := config.proxyConfig()

	if !got.Trust || got.TrustedCount != 2 {
		t.Errorf("proxyConfig() = %+v, want Trust=true TrustedCount=2", got)
	}
}
