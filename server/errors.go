package server

import "errors"

// Sentinel errors returned by the grant flows. Callers match them with
// errors.Is; any other error is an internal failure.
var (
	// ErrUnknownClient means the client_id of an authorization request is not registered.
	ErrUnknownClient = errors.New("unknown OAuth2 client")

	// ErrRedirectURIMismatch means redirect_uri differs from the registered URI.
	ErrRedirectURIMismatch = errors.New("redirect URI mismatch")

	// ErrResponseTypeMismatch means response_type is not "code".
	ErrResponseTypeMismatch = errors.New("response type mismatch")

	// ErrBadRequest means a parameter required by the request is missing.
	ErrBadRequest = errors.New("bad request")

	// ErrUnsupportedGrantType means grant_type is missing or not one of
	// authorization_code and refresh_token.
	ErrUnsupportedGrantType = errors.New("unsupported grant type")

	// ErrInvalidGrant covers every rejected token request: bad client
	// credentials, and unknown, expired or mismatched codes and refresh tokens.
	ErrInvalidGrant = errors.New("invalid grant")
)
