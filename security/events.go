package security

// Event types written by the Auditor.
const (
	// EventAuthorizationCodeIssued is logged when an authorization code is issued
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventTokenIssued is logged when a code is exchanged for an access/refresh token pair
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when a refresh token is used to obtain a new access token
	EventTokenRefreshed = "token_refreshed"

	// EventAuthFailure is logged when a grant is rejected
	EventAuthFailure = "auth_failure"

	// EventInvalidRedirect is logged when a redirect_uri does not match the registration
	EventInvalidRedirect = "invalid_redirect"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)

// Reasons attached to EventAuthFailure.
const (
	ReasonUnknownClient        = "unknown_client"
	ReasonInvalidClientSecret  = "invalid_client_secret" //nolint:gosec // reason label, not a credential
	ReasonUnknownCode          = "unknown_code"
	ReasonClientIDMismatch     = "client_id_mismatch"
	ReasonExpiredCode          = "expired_code"
	ReasonRedirectURIMismatch  = "redirect_uri_mismatch"
	ReasonUnknownRefreshToken  = "unknown_refresh_token" //nolint:gosec // reason label, not a credential
	ReasonResponseTypeMismatch = "response_type_mismatch"
	ReasonMissingParameter     = "missing_parameter"
)
