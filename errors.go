package oauth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/giantswarm/oauth2-server/server"
)

// OAuth error codes returned in JSON error bodies
const (
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
)

// Plain-text bodies for errors that carry no OAuth error code
const (
	descUnknownClient        = "Unknown OAuth2 Client"
	descRedirectURIMismatch  = "Redirect URI mismatch"
	descResponseTypeMismatch = "Response type mismatch"
	descBadRequest           = "Bad request"
	descInternal             = "Internal server error"
	descMethodNotAllowed     = "Method not allowed"
)

// OAuthError is an error response. When Code is set the body is JSON
// ({"error": Code}); otherwise Description is written as plain text.
type OAuthError struct {
	Code        string // OAuth error code (e.g., "invalid_grant"), or empty
	Description string // Human-readable error description
	Status      int    // HTTP status code
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	if e.Code == "" {
		return e.Description
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code, description string, status int) *OAuthError {
	return &OAuthError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common OAuth errors as reusable instances
var (
	// ErrInvalidGrant is returned for every rejected token request
	ErrInvalidGrant = NewOAuthError(ErrorCodeInvalidGrant, "", http.StatusBadRequest)

	// ErrUnsupportedGrantType is returned for a missing or unknown grant_type
	ErrUnsupportedGrantType = NewOAuthError(ErrorCodeUnsupportedGrantType, "", http.StatusBadRequest)

	// ErrRateLimitExceeded is returned when the client IP is over its rate limit
	ErrRateLimitExceeded = NewOAuthError(ErrorCodeRateLimitExceeded, "", http.StatusTooManyRequests)

	// ErrInternal hides the cause of any unexpected failure from the client
	ErrInternal = NewOAuthError("", descInternal, http.StatusInternalServerError)
)

// ErrorFromServer maps an error returned by the server package to the
// response sent to the client. Unrecognized errors become ErrInternal.
func ErrorFromServer(err error) *OAuthError {
	var oauthErr *OAuthError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &oauthErr):
		return oauthErr
	case errors.Is(err, server.ErrUnknownClient):
		return NewOAuthError("", descUnknownClient, http.StatusForbidden)
	case errors.Is(err, server.ErrRedirectURIMismatch):
		return NewOAuthError("", descRedirectURIMismatch, http.StatusBadRequest)
	case errors.Is(err, server.ErrResponseTypeMismatch):
		return NewOAuthError("", descResponseTypeMismatch, http.StatusBadRequest)
	case errors.Is(err, server.ErrBadRequest):
		return NewOAuthError("", descBadRequest, http.StatusBadRequest)
	case errors.Is(err, server.ErrUnsupportedGrantType):
		return ErrUnsupportedGrantType
	case errors.Is(err, server.ErrInvalidGrant):
		return ErrInvalidGrant
	default:
		return ErrInternal
	}
}
