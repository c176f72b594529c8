package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor writes the security audit trail. Identifiers that link to issued
// credentials are hashed before they reach the log.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// Event represents a security audit event
type Event struct {
	Type            string
	ClientID        string
	AuthorizationID string
	IPAddress       string
	RequestID       string
	Details         map[string]any
	Timestamp       time.Time
}

// Enabled reports whether events are written.
func (a *Auditor) Enabled() bool {
	return a != nil && a.enabled
}

// LogEvent logs a security event. A nil Auditor is a no-op.
func (a *Auditor) LogEvent(event Event) {
	if !a.Enabled() {
		return
	}

	event.Timestamp = a.now()

	attrs := []any{
		"event_type", event.Type,
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"timestamp", event.Timestamp,
	}
	if event.AuthorizationID != "" {
		attrs = append(attrs, "authorization_id_hash", hashForLogging(event.AuthorizationID))
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}

	a.logger.Info("security_audit", attrs...)
}

// LogAuthorizationCodeIssued logs a code handed to a client's redirect URI
func (a *Auditor) LogAuthorizationCodeIssued(clientID, ipAddress, requestID string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		ClientID:  clientID,
		IPAddress: ipAddress,
		RequestID: requestID,
	})
}

// LogTokenIssued logs an access/refresh token pair issued from a code
func (a *Auditor) LogTokenIssued(clientID, authorizationID, ipAddress, requestID string) {
	a.LogEvent(Event{
		Type:            EventTokenIssued,
		ClientID:        clientID,
		AuthorizationID: authorizationID,
		IPAddress:       ipAddress,
		RequestID:       requestID,
	})
}

// LogTokenRefreshed logs an access token issued from a refresh token
func (a *Auditor) LogTokenRefreshed(clientID, authorizationID, ipAddress, requestID string) {
	a.LogEvent(Event{
		Type:            EventTokenRefreshed,
		ClientID:        clientID,
		AuthorizationID: authorizationID,
		IPAddress:       ipAddress,
		RequestID:       requestID,
	})
}

// LogAuthFailure logs a rejected grant or client authentication
func (a *Auditor) LogAuthFailure(clientID, ipAddress, requestID, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		ClientID:  clientID,
		IPAddress: ipAddress,
		RequestID: requestID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogInvalidRedirect logs an authorization request whose redirect_uri does
// not match the registered one.
func (a *Auditor) LogInvalidRedirect(clientID, ipAddress, requestID string) {
	a.LogEvent(Event{
		Type:      EventInvalidRedirect,
		ClientID:  clientID,
		IPAddress: ipAddress,
		RequestID: requestID,
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, requestID string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		RequestID: requestID,
	})
}

// hashForLogging creates a short SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
