package server

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestApplySecureDefaults(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		name     string
		config   Config
		wantCode time.Duration
		wantAT   time.Duration
		wantCost int
	}{
		{
			name:     "zero config",
			config:   Config{},
			wantCode: 10 * time.Minute,
			wantAT:   time.Hour,
			wantCost: bcrypt.DefaultCost,
		},
		{
			name: "explicit values kept",
			config: Config{
				AuthorizationCodeTTL: time.Minute,
				AccessTokenTTL:       15 * time.Minute,
				BcryptCost:           bcrypt.MinCost,
			},
			wantCode: time.Minute,
			wantAT:   15 * time.Minute,
			wantCost: bcrypt.MinCost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applySecureDefaults(&tt.config, logger)

			if got.AuthorizationCodeTTL != tt.wantCode {
				t.Errorf("AuthorizationCodeTTL = %v, want %v", got.AuthorizationCodeTTL, tt.wantCode)
			}
			if got.AccessTokenTTL != tt.wantAT {
				t.Errorf("AccessTokenTTL = %v, want %v", got.AccessTokenTTL, tt.wantAT)
			}
			if got.BcryptCost != tt.wantCost {
				t.Errorf("BcryptCost = %d, want %d", got.BcryptCost, tt.wantCost)
			}
		})
	}
}

func TestApplySecureDefaults_WarnsOnLongCodeTTL(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	applySecureDefaults(&Config{AuthorizationCodeTTL: 2 * time.Hour}, logger)

	if !strings.Contains(buf.String(), "Long authorization code lifetime") {
		t.Errorf("expected warning, got %q", buf.String())
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		AuthorizationCodeTTL: time.Minute,
		AccessTokenTTL:       time.Hour,
		BcryptCost:           bcrypt.MinCost,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "one second TTLs", mutate: func(c *Config) {
			c.AuthorizationCodeTTL = time.Second
			c.AccessTokenTTL = time.Second
		}},
		{name: "code TTL below one second", mutate: func(c *Config) { c.AuthorizationCodeTTL = 999 * time.Millisecond }, wantErr: true},
		{name: "access TTL negative", mutate: func(c *Config) { c.AccessTokenTTL = -time.Hour }, wantErr: true},
		{name: "bcrypt cost below minimum", mutate: func(c *Config) { c.BcryptCost = bcrypt.MinCost - 1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)

			err := c.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
