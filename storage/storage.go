package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when an insert collides with a unique key.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrAborted matches errors wrapped with Abort.
	ErrAborted = errors.New("transaction aborted")
)

// Abort wraps err, returned from a Gateway.Atomic function, to mark it as a
// decision of the function rather than a storage failure. The transaction is
// rolled back as for any error, and errors.Is still matches err.
func Abort(err error) error {
	return &abortError{err: err}
}

type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }

func (e *abortError) Unwrap() []error { return []error{e.err, ErrAborted} }

// PendingAuthorization is an issued, not yet exchanged authorization code.
// It is valid only while now < ExpiresAt and is consumed by exactly one
// successful exchange.
type PendingAuthorization struct {
	AuthorizationCode string
	ClientID          string
	RedirectURI       string
	ExpiresAt         time.Time
}

// Authorization is created by a successful code exchange and anchors every
// access token issued from it, directly or through its refresh token.
// ClientSecret holds a one-way digest of the secret presented at exchange
// time; it is never read back for authentication.
type Authorization struct {
	AuthorizationID string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
}

// AccessToken is a bearer credential, valid while now < ExpiresAt.
type AccessToken struct {
	AccessToken     string
	ExpiresAt       time.Time
	AuthorizationID string
}

// PurgeResult reports how many expired rows a purge removed.
type PurgeResult struct {
	PendingAuthorizations int64
	AccessTokens          int64
}

// Total returns the number of rows removed.
func (r PurgeResult) Total() int64 {
	return r.PendingAuthorizations + r.AccessTokens
}

// Queries are the typed statements a backend supports. Find methods return
// ErrNotFound when no row matches; inserts return ErrAlreadyExists on a key
// collision.
type Queries interface {
	InsertPendingAuthorization(ctx context.Context, p *PendingAuthorization) error
	FindPendingAuthorization(ctx context.Context, code string) (*PendingAuthorization, error)
	DeletePendingAuthorization(ctx context.Context, code string) error

	InsertAuthorization(ctx context.Context, a *Authorization) error
	FindAuthorizationByRefreshToken(ctx context.Context, refreshToken string) (*Authorization, error)

	InsertAccessToken(ctx context.Context, t *AccessToken) error
	FindAccessToken(ctx context.Context, accessToken string) (*AccessToken, error)

	// DeleteExpired removes pending authorizations and access tokens whose
	// expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (PurgeResult, error)
}

// Backend is a storage implementation. Backends are not required to be safe
// for concurrent use; the Gateway serializes all access.
type Backend interface {
	Queries

	// WithTx runs fn inside a transaction. Writes made through q are
	// committed when fn returns nil and discarded otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, q Queries) error) error

	// Name identifies the backend in logs and telemetry (e.g. "sqlite").
	Name() string

	// Close releases the backend's resources.
	Close() error
}
