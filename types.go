package oauth

import (
	"context"

	"github.com/giantswarm/oauth2-server/server"
)

// TokenResponse is the JSON body of a successful token request.
// refresh_token is present only for the authorization_code grant.
type TokenResponse = server.TokenResponse

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

type accessTokenContextKey struct{}

// ContextWithAccessToken stores a validated access token in ctx.
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenContextKey{}, token)
}

// AccessTokenFromContext returns the access token validated by
// Handler.ValidateToken, if any.
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenContextKey{}).(string)
	return token, ok
}
