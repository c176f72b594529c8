package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/internal/util"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/storage"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// Operation labels used on rejection metrics and logs.
const (
	opAuthorize    = "authorize"
	opExchangeCode = "exchange_code"
	opRefreshToken = "refresh_token"
	opCheckAccess  = "check_access"
)

// TokenResponse is the body of a successful token response.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Authorize validates an authorization request, stores a new pending
// authorization and returns the URL the user agent is redirected to: the
// registered redirect URI with code and state appended.
//
// Earlier codes issued to the same client stay valid.
func (s *Server) Authorize(ctx context.Context, req AuthorizationRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.server.authorize")
	defer span.End()
	s.addRequestAttributes(ctx, span, req.ClientID, "")
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrResponseType, req.ResponseType))

	client, ok := s.registry.Lookup(req.ClientID)
	if !ok {
		return "", s.reject(ctx, span, opAuthorize, req.ClientID, security.ReasonUnknownClient, ErrUnknownClient)
	}

	if req.RedirectURI != client.RedirectURI {
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrRedirectURI, req.RedirectURI))
		return "", s.reject(ctx, span, opAuthorize, req.ClientID, security.ReasonRedirectURIMismatch, ErrRedirectURIMismatch)
	}

	if req.ResponseType != ResponseTypeCode {
		return "", s.reject(ctx, span, opAuthorize, req.ClientID, security.ReasonResponseTypeMismatch, ErrResponseTypeMismatch)
	}

	redirect, err := url.Parse(client.RedirectURI)
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", fmt.Errorf("parse registered redirect URI for %s: %w", req.ClientID, err)
	}

	pending := &storage.PendingAuthorization{
		AuthorizationCode: security.GenerateToken(security.AuthorizationCodeLength),
		ClientID:          req.ClientID,
		RedirectURI:       req.RedirectURI,
		ExpiresAt:         security.ExpiresAt(s.now(), s.Config.AuthorizationCodeTTL),
	}
	if err := s.gateway.InsertPendingAuthorization(ctx, pending); err != nil {
		instrumentation.RecordError(span, err)
		return "", fmt.Errorf("store pending authorization: %w", err)
	}

	query := redirect.Query()
	query.Set("code", pending.AuthorizationCode)
	query.Set("state", req.State)
	redirect.RawQuery = query.Encode()

	s.Logger.Debug("Issued authorization code",
		"client_id", req.ClientID,
		"code_prefix", util.TokenPrefix(pending.AuthorizationCode),
		"expires_at", pending.ExpiresAt)

	clientIP, requestID := requestMeta(ctx)
	s.Auditor.LogAuthorizationCodeIssued(req.ClientID, clientIP, requestID)
	s.recordAudit(ctx, security.EventAuthorizationCodeIssued)
	if m := s.metrics(); m != nil {
		m.RecordAuthorizationStarted(ctx, req.ClientID)
	}
	instrumentation.SetSpanSuccess(span)

	return redirect.String(), nil
}

// Exchange runs the grant carried by req.
func (s *Server) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	switch g := req.Grant.(type) {
	case AuthorizationCodeGrant:
		return s.exchangeCode(ctx, req.ClientID, req.ClientSecret, g)
	case RefreshTokenGrant:
		return s.refresh(ctx, req.ClientID, req.ClientSecret, g)
	default:
		return nil, ErrUnsupportedGrantType
	}
}

// ExchangeAuthorizationCode authenticates the client and trades code for a
// new authorization with an access and refresh token.
//
// The lookup, every check and the writes run in one storage critical section,
// and the code is deleted there, so a code is redeemed at most once even
// under concurrent requests. An expired code is left for PurgeExpired.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, clientID, clientSecret, code, redirectURI string) (*TokenResponse, error) {
	return s.exchangeCode(ctx, clientID, clientSecret, AuthorizationCodeGrant{Code: code, RedirectURI: redirectURI})
}

func (s *Server) exchangeCode(ctx context.Context, clientID, clientSecret string, g AuthorizationCodeGrant) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.server.exchange_code")
	defer span.End()
	s.addRequestAttributes(ctx, span, clientID, GrantTypeAuthorizationCode)

	if err := s.authenticateClient(ctx, span, opExchangeCode, clientID, clientSecret); err != nil {
		return nil, err
	}
	if err := g.validate(); err != nil {
		return nil, s.rejectMalformed(ctx, span, opExchangeCode, clientID, err)
	}
	code, redirectURI := g.Code, g.RedirectURI

	// Credentials and the secret digest are prepared before taking the lock.
	secretDigest, err := bcrypt.GenerateFromPassword([]byte(clientSecret), s.Config.BcryptCost)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("digest client secret: %w", err)
	}
	authorization := &storage.Authorization{
		AuthorizationID: security.GenerateToken(security.AuthorizationIDLength),
		ClientID:        clientID,
		ClientSecret:    string(secretDigest),
		RefreshToken:    security.GenerateToken(security.RefreshTokenLength),
	}
	now := s.now()
	accessToken := &storage.AccessToken{
		AccessToken:     security.GenerateToken(security.AccessTokenLength),
		ExpiresAt:       security.ExpiresAt(now, s.Config.AccessTokenTTL),
		AuthorizationID: authorization.AuthorizationID,
	}

	var reason string
	err = s.gateway.Atomic(ctx, func(ctx context.Context, q storage.Queries) error {
		pending, err := q.FindPendingAuthorization(ctx, code)
		if errors.Is(err, storage.ErrNotFound) {
			reason = security.ReasonUnknownCode
			return storage.Abort(ErrInvalidGrant)
		}
		if err != nil {
			return fmt.Errorf("find pending authorization: %w", err)
		}

		switch {
		case pending.ClientID != clientID:
			reason = security.ReasonClientIDMismatch
		case security.IsExpired(pending.ExpiresAt, now):
			reason = security.ReasonExpiredCode
		case pending.RedirectURI != redirectURI:
			reason = security.ReasonRedirectURIMismatch
		}
		if reason != "" {
			return storage.Abort(ErrInvalidGrant)
		}

		if err := q.DeletePendingAuthorization(ctx, code); err != nil {
			return fmt.Errorf("consume authorization code: %w", err)
		}
		if err := q.InsertAuthorization(ctx, authorization); err != nil {
			return fmt.Errorf("store authorization: %w", err)
		}
		if err := q.InsertAccessToken(ctx, accessToken); err != nil {
			return fmt.Errorf("store access token: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrInvalidGrant) {
		s.Logger.Debug("Authorization code validation failed",
			"reason", reason,
			"client_id", clientID,
			"code_prefix", util.TokenPrefix(code))
		return nil, s.reject(ctx, span, opExchangeCode, clientID, reason, ErrInvalidGrant)
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	clientIP, requestID := requestMeta(ctx)
	s.Auditor.LogTokenIssued(clientID, authorization.AuthorizationID, clientIP, requestID)
	s.recordAudit(ctx, security.EventTokenIssued)
	if m := s.metrics(); m != nil {
		m.RecordCodeExchange(ctx, clientID)
	}

	resp := &TokenResponse{
		TokenType:    TokenTypeBearer,
		AccessToken:  accessToken.AccessToken,
		RefreshToken: authorization.RefreshToken,
		ExpiresIn:    security.RemainingSeconds(accessToken.ExpiresAt, now),
	}
	instrumentation.SetSpanAttributes(span, attribute.Int64(instrumentation.AttrExpiresIn, resp.ExpiresIn))
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

// RefreshAccessToken authenticates the client and issues a new access token
// for the authorization owning refreshToken. The refresh token is not
// rotated and stays valid; earlier access tokens are unaffected.
func (s *Server) RefreshAccessToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	return s.refresh(ctx, clientID, clientSecret, RefreshTokenGrant{RefreshToken: refreshToken})
}

func (s *Server) refresh(ctx context.Context, clientID, clientSecret string, g RefreshTokenGrant) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.server.refresh_token")
	defer span.End()
	s.addRequestAttributes(ctx, span, clientID, GrantTypeRefreshToken)

	if err := s.authenticateClient(ctx, span, opRefreshToken, clientID, clientSecret); err != nil {
		return nil, err
	}
	if err := g.validate(); err != nil {
		return nil, s.rejectMalformed(ctx, span, opRefreshToken, clientID, err)
	}
	refreshToken := g.RefreshToken

	now := s.now()
	accessToken := &storage.AccessToken{
		AccessToken: security.GenerateToken(security.AccessTokenLength),
		ExpiresAt:   security.ExpiresAt(now, s.Config.AccessTokenTTL),
	}

	var reason string
	err := s.gateway.Atomic(ctx, func(ctx context.Context, q storage.Queries) error {
		authorization, err := q.FindAuthorizationByRefreshToken(ctx, refreshToken)
		if errors.Is(err, storage.ErrNotFound) {
			reason = security.ReasonUnknownRefreshToken
			return storage.Abort(ErrInvalidGrant)
		}
		if err != nil {
			return fmt.Errorf("find authorization: %w", err)
		}
		if authorization.ClientID != clientID {
			reason = security.ReasonClientIDMismatch
			return storage.Abort(ErrInvalidGrant)
		}

		accessToken.AuthorizationID = authorization.AuthorizationID
		if err := q.InsertAccessToken(ctx, accessToken); err != nil {
			return fmt.Errorf("store access token: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrInvalidGrant) {
		s.Logger.Debug("Refresh token validation failed",
			"reason", reason,
			"client_id", clientID,
			"token_prefix", util.TokenPrefix(refreshToken))
		return nil, s.reject(ctx, span, opRefreshToken, clientID, reason, ErrInvalidGrant)
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	clientIP, requestID := requestMeta(ctx)
	s.Auditor.LogTokenRefreshed(clientID, accessToken.AuthorizationID, clientIP, requestID)
	s.recordAudit(ctx, security.EventTokenRefreshed)
	if m := s.metrics(); m != nil {
		m.RecordTokenRefresh(ctx, clientID)
	}

	resp := &TokenResponse{
		TokenType:   TokenTypeBearer,
		AccessToken: accessToken.AccessToken,
		ExpiresIn:   security.RemainingSeconds(accessToken.ExpiresAt, now),
	}
	instrumentation.SetSpanAttributes(span, attribute.Int64(instrumentation.AttrExpiresIn, resp.ExpiresIn))
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

// CheckAccess reports whether accessToken was issued by this server and has
// not expired. Unknown tokens yield false with a nil error; only storage
// failures return an error.
func (s *Server) CheckAccess(ctx context.Context, accessToken string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.server.check_access")
	defer span.End()

	granted, err := s.checkAccess(ctx, accessToken)
	if err != nil {
		instrumentation.RecordError(span, err)
		return false, err
	}

	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrAccessGranted, granted))
	instrumentation.SetSpanSuccess(span)
	if m := s.metrics(); m != nil {
		m.RecordAccessCheck(ctx, granted)
	}
	return granted, nil
}

func (s *Server) checkAccess(ctx context.Context, accessToken string) (bool, error) {
	if accessToken == "" {
		return false, nil
	}

	token, err := s.gateway.FindAccessToken(ctx, accessToken)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", opCheckAccess, err)
	}

	return !security.IsExpired(token.ExpiresAt, s.now()), nil
}

// authenticateClient checks client credentials for the token endpoint. Both
// an unknown client and a wrong secret are reported as ErrInvalidGrant.
func (s *Server) authenticateClient(ctx context.Context, span trace.Span, op, clientID, clientSecret string) error {
	if _, ok := s.registry.Authenticate(clientID, clientSecret); ok {
		return nil
	}

	reason := security.ReasonInvalidClientSecret
	if _, known := s.registry.Lookup(clientID); !known {
		reason = security.ReasonUnknownClient
	}
	return s.reject(ctx, span, op, clientID, reason, ErrInvalidGrant)
}

// reject records a refused request in the audit trail, metrics and span,
// then returns err unchanged.
func (s *Server) reject(ctx context.Context, span trace.Span, op, clientID, reason string, err error) error {
	clientIP, requestID := requestMeta(ctx)

	if op == opAuthorize && reason == security.ReasonRedirectURIMismatch {
		s.Auditor.LogInvalidRedirect(clientID, clientIP, requestID)
		s.recordAudit(ctx, security.EventInvalidRedirect)
	} else {
		s.Auditor.LogAuthFailure(clientID, clientIP, requestID, reason)
		s.recordAudit(ctx, security.EventAuthFailure)
	}

	if m := s.metrics(); m != nil {
		m.RecordGrantRejected(ctx, op, reason)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrError, reason))
	instrumentation.SetSpanError(span, err.Error())
	return err
}

// rejectMalformed records a request from an authenticated client that lacks
// a required parameter. It is not an authentication failure, so nothing is
// audited.
func (s *Server) rejectMalformed(ctx context.Context, span trace.Span, op, clientID string, err error) error {
	s.Logger.Debug("Token request rejected",
		"operation", op,
		"client_id", clientID,
		"error", err)
	if m := s.metrics(); m != nil {
		m.RecordGrantRejected(ctx, op, security.ReasonMissingParameter)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrError, security.ReasonMissingParameter))
	instrumentation.SetSpanError(span, err.Error())
	return err
}

func (s *Server) recordAudit(ctx context.Context, eventType string) {
	if m := s.metrics(); m != nil && s.Auditor.Enabled() {
		m.RecordAuditEvent(ctx, eventType)
	}
}

func (s *Server) addRequestAttributes(ctx context.Context, span trace.Span, clientID, grantType string) {
	instrumentation.AddGrantAttributes(span, clientID, grantType)
	if s.Instrumentation != nil && s.Instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, security.GetClientIP(ctx))
	}
}
