package server

import (
	"fmt"
	"net/url"
)

// Grant type and response type values accepted by the server.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"

	ResponseTypeCode = "code"
)

// AuthorizationRequest is the parsed query of an authorization request.
type AuthorizationRequest struct {
	ClientID     string
	RedirectURI  string
	State        string
	ResponseType string
}

// TokenRequest is a parsed token request. Grant is always one of
// AuthorizationCodeGrant and RefreshTokenGrant.
type TokenRequest struct {
	ClientID     string
	ClientSecret string
	Grant        Grant
}

// Grant is the grant-specific part of a TokenRequest.
type Grant interface {
	// GrantType returns the grant_type value the grant was parsed from.
	GrantType() string

	// validate reports a parameter the request did not carry. It runs only
	// after the client has authenticated.
	validate() error
}

// AuthorizationCodeGrant exchanges an authorization code for a token pair.
type AuthorizationCodeGrant struct {
	Code        string
	RedirectURI string

	missing string
}

// GrantType implements Grant.
func (AuthorizationCodeGrant) GrantType() string { return GrantTypeAuthorizationCode }

func (g AuthorizationCodeGrant) validate() error { return missingParam(g.missing) }

// RefreshTokenGrant issues a new access token for an existing authorization.
type RefreshTokenGrant struct {
	RefreshToken string

	missing string
}

// GrantType implements Grant.
func (RefreshTokenGrant) GrantType() string { return GrantTypeRefreshToken }

func (g RefreshTokenGrant) validate() error { return missingParam(g.missing) }

func missingParam(name string) error {
	if name == "" {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrBadRequest, name)
}

// firstAbsent returns the first of names not present in values.
func firstAbsent(values url.Values, names ...string) string {
	for _, name := range names {
		if !values.Has(name) {
			return name
		}
	}
	return ""
}

// ParseAuthorizationRequest reads an authorization request from query
// parameters. Every parameter must be present; empty values are passed on
// and rejected by Server.Authorize in its usual order.
func ParseAuthorizationRequest(values url.Values) (AuthorizationRequest, error) {
	if name := firstAbsent(values, "client_id", "redirect_uri", "state", "response_type"); name != "" {
		return AuthorizationRequest{}, missingParam(name)
	}

	return AuthorizationRequest{
		ClientID:     values.Get("client_id"),
		RedirectURI:  values.Get("redirect_uri"),
		State:        values.Get("state"),
		ResponseType: values.Get("response_type"),
	}, nil
}

// ParseTokenRequest reads a token request from merged query and form
// parameters and builds its grant variant. A missing or unknown grant_type
// yields ErrUnsupportedGrantType and absent client credentials yield
// ErrBadRequest. Absent grant parameters are recorded on the grant and
// reported by Server.Exchange once the client has authenticated.
func ParseTokenRequest(values url.Values) (TokenRequest, error) {
	var grant Grant
	switch grantType := values.Get("grant_type"); grantType {
	case GrantTypeAuthorizationCode:
		grant = AuthorizationCodeGrant{
			Code:        values.Get("code"),
			RedirectURI: values.Get("redirect_uri"),
			missing:     firstAbsent(values, "code", "redirect_uri"),
		}
	case GrantTypeRefreshToken:
		grant = RefreshTokenGrant{
			RefreshToken: values.Get("refresh_token"),
			missing:      firstAbsent(values, "refresh_token"),
		}
	default:
		return TokenRequest{}, fmt.Errorf("%w: %q", ErrUnsupportedGrantType, grantType)
	}

	if name := firstAbsent(values, "client_id", "client_secret"); name != "" {
		return TokenRequest{}, missingParam(name)
	}

	return TokenRequest{
		ClientID:     values.Get("client_id"),
		ClientSecret: values.Get("client_secret"),
		Grant:        grant,
	}, nil
}
