package testutil

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/storage"
)

// Fixture client registration.
const (
	TestClientID     = "test-client"
	TestClientSecret = "test-secret" //nolint:gosec // test fixture
	TestRedirectURI  = "https://app.example.com/callback"

	OtherClientID     = "other-client"
	OtherClientSecret = "other-secret" //nolint:gosec // test fixture
	OtherRedirectURI  = "https://other.example.com/cb"
)

// Epoch is a fixed, whole-second instant used as the default mock time.
var Epoch = time.Unix(1_700_000_000, 0)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// NewPendingAuthorization returns a fresh pending authorization for the
// fixture client expiring at expiresAt.
func NewPendingAuthorization(expiresAt time.Time) *storage.PendingAuthorization {
	return &storage.PendingAuthorization{
		AuthorizationCode: security.GenerateToken(security.AuthorizationCodeLength),
		ClientID:          TestClientID,
		RedirectURI:       TestRedirectURI,
		ExpiresAt:         expiresAt,
	}
}

// NewAuthorization returns a fresh authorization for the fixture client.
func NewAuthorization() *storage.Authorization {
	return &storage.Authorization{
		AuthorizationID: security.GenerateToken(security.AuthorizationIDLength),
		ClientID:        TestClientID,
		ClientSecret:    "$2a$04$fixturedigestfixturedigestfixturedigestfixturedig",
		RefreshToken:    security.GenerateToken(security.RefreshTokenLength),
	}
}

// NewAccessToken returns a fresh access token bound to authorizationID.
func NewAccessToken(authorizationID string, expiresAt time.Time) *storage.AccessToken {
	return &storage.AccessToken{
		AccessToken:     security.GenerateToken(security.AccessTokenLength),
		ExpiresAt:       expiresAt,
		AuthorizationID: authorizationID,
	}
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertErrorIs fails the test unless errors.Is(err, target)
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
