package oauth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/server"
)

// Endpoint names used in metrics, spans and routes
const (
	endpointAuthorization = "authorization"
	endpointToken         = "token"
	endpointProtected     = "protected"
)

// Handler is a thin HTTP adapter for the authorization Server.
// It parses requests and delegates to the Server for business logic.
type Handler struct {
	server      *server.Server
	logger      *slog.Logger
	tracer      trace.Tracer
	rateLimiter *security.RateLimiter
	proxy       security.ProxyConfig
	pathPrefix  string
}

// NewHandler creates a new HTTP handler mounted at DefaultPathPrefix.
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:     srv,
		logger:     logger,
		tracer:     tracenoop.NewTracerProvider().Tracer("http"),
		pathPrefix: DefaultPathPrefix,
	}
	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// SetRateLimiter enables per-IP rate limiting on every endpoint
func (h *Handler) SetRateLimiter(rl *security.RateLimiter) {
	h.rateLimiter = rl
}

// SetProxyConfig sets how client IPs are resolved behind proxies
func (h *Handler) SetProxyConfig(p security.ProxyConfig) {
	h.proxy = p
}

// SetPathPrefix sets the prefix used by RegisterRoutes
func (h *Handler) SetPathPrefix(prefix string) {
	h.pathPrefix = "/" + strings.Trim(prefix, "/")
}

// AuthorizationPath returns the path of the authorization endpoint.
func (h *Handler) AuthorizationPath() string {
	return h.route(endpointAuthorization)
}

// TokenPath returns the path of the token endpoint.
func (h *Handler) TokenPath() string {
	return h.route(endpointToken)
}

func (h *Handler) route(endpoint string) string {
	return strings.TrimSuffix(h.pathPrefix, "/") + "/" + endpoint
}

// RegisterRoutes mounts the authorization and token endpoints on mux,
// wrapped in the request ID middleware.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(h.AuthorizationPath(), security.RequestIDMiddleware(http.HandlerFunc(h.ServeAuthorization)))
	mux.Handle(h.TokenPath(), security.RequestIDMiddleware(http.HandlerFunc(h.ServeToken)))
}

// ServeAuthorization handles GET {prefix}/authorization and redirects the
// user agent to the client with a fresh authorization code.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	h.observe(endpointAuthorization, w, r, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			h.writeMethodNotAllowed(w, http.MethodGet)
			return
		}

		req, err := server.ParseAuthorizationRequest(r.URL.Query())
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		redirect, err := h.server.Authorize(r.Context(), req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
	})
}

// ServeToken handles POST {prefix}/token. Parameters are read from the
// query string and an application/x-www-form-urlencoded body; body values
// take precedence.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	h.observe(endpointToken, w, r, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			h.writeMethodNotAllowed(w, http.MethodPost)
			return
		}

		if err := r.ParseForm(); err != nil {
			h.logger.Debug("Failed to parse token request", "error", err)
			h.writeError(w, r, server.ErrBadRequest)
			return
		}

		req, err := server.ParseTokenRequest(r.Form)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		resp, err := h.server.Exchange(r.Context(), req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		h.writeJSON(w, http.StatusOK, resp)
	})
}

// ValidateToken is middleware that admits requests carrying an unexpired
// access token in an "Authorization: Bearer" header. The token is
// available to next through AccessTokenFromContext.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := h.proxy.ClientIP(r)
		ctx := security.WithClientIP(r.Context(), clientIP)
		r = r.WithContext(ctx)

		if h.checkIPRateLimit(w, r, clientIP, endpointProtected) {
			return
		}

		accessToken, ok := extractBearerToken(r)
		if !ok {
			security.SetSecurityHeaders(w, r)
			h.writeUnauthorizedError(w, "Missing or malformed Authorization header")
			return
		}

		granted, err := h.server.CheckAccess(ctx, accessToken)
		if err != nil {
			h.logger.Error("Access check failed",
				"error", err,
				"request_id", security.GetRequestID(ctx))
			security.SetSecurityHeaders(w, r)
			h.writeOAuthError(w, ErrInternal)
			return
		}
		if !granted {
			security.SetSecurityHeaders(w, r)
			h.writeUnauthorizedError(w, "The access token is invalid or expired")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithAccessToken(ctx, accessToken)))
	})
}

// observe runs fn with tracing, security headers, rate limiting and HTTP
// metrics around it.
func (h *Handler) observe(endpoint string, w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	startTime := time.Now()

	ctx, span := h.tracer.Start(r.Context(), "oauth.http."+endpoint)
	defer span.End()

	clientIP := h.proxy.ClientIP(r)
	ctx = security.WithClientIP(ctx, clientIP)
	if h.server.Instrumentation != nil && h.server.Instrumentation.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, clientIP)
	}
	r = r.WithContext(ctx)

	rec := &statusRecorder{ResponseWriter: w}
	security.SetSecurityHeaders(rec, r)

	if !h.checkIPRateLimit(rec, r, clientIP, endpoint) {
		fn(rec, r)
	}

	status := rec.statusCode()
	instrumentation.AddHTTPAttributes(span, r.Method, endpoint, status)
	if status >= http.StatusInternalServerError {
		instrumentation.SetSpanError(span, http.StatusText(status))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	h.recordHTTPMetrics(ctx, endpoint, r.Method, status, startTime)
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP, endpoint string) bool {
	if h.rateLimiter == nil || h.rateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), "ip")
	}
	h.server.Auditor.LogRateLimitExceeded(clientIP, security.GetRequestID(r.Context()))
	if h.server.Instrumentation != nil && h.server.Auditor.Enabled() {
		h.server.Instrumentation.Metrics().RecordAuditEvent(r.Context(), security.EventRateLimitExceeded)
	}

	w.Header().Set("Retry-After", "1")
	h.writeOAuthError(w, ErrRateLimitExceeded)
	return true
}

// extractBearerToken returns the token of an "Authorization: Bearer" header.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeError maps err to a response. Internal failures are logged with the
// request ID and reported to the client without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	oauthErr := ErrorFromServer(err)
	if oauthErr == ErrInternal {
		h.logger.Error("Request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", security.GetRequestID(r.Context()))
	}
	h.writeOAuthError(w, oauthErr)
}

func (h *Handler) writeOAuthError(w http.ResponseWriter, e *OAuthError) {
	if e.Code == "" {
		http.Error(w, e.Description, e.Status)
		return
	}
	h.writeJSON(w, e.Status, ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
	})
}

func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+ErrorCodeInvalidToken+`"`)
	h.writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:            ErrorCodeInvalidToken,
		ErrorDescription: description,
	})
}

func (h *Handler) writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, descMethodNotAllowed, http.StatusMethodNotAllowed)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write response body", "error", err)
	}
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}
	durationMs := float64(time.Since(startTime).Microseconds()) / 1000.0
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, durationMs)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) statusCode() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
