// Package security provides the credential and request hygiene pieces of the
// authorization server: opaque token generation, expiry arithmetic, per-IP
// rate limiting, the security audit trail, client IP extraction, request IDs
// and response security headers.
//
// # Tokens
//
// GenerateToken draws each symbol uniformly from [A-Za-z0-9] using
// crypto/rand with rejection sampling:
//
//	code := security.GenerateToken(security.AuthorizationCodeLength)
//
// # Rate Limiting
//
// RateLimiter is a per-identifier token bucket (golang.org/x/time/rate) with
// LRU eviction once MaxEntries identifiers are tracked, and a background
// sweep of idle identifiers:
//
//	limiter := security.NewRateLimiter(security.RateLimitConfig{Rate: 10, Burst: 20}, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // 429
//	}
//
// # Audit
//
// Auditor writes "security_audit" records through slog. Authorization IDs
// are hashed; codes, tokens and secrets are never passed to it.
package security
