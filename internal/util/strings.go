// Package util provides common utility functions used across the oauth2-server library.
package util

// TokenLogPrefixLength is how many characters of a credential may appear in logs.
const TokenLogPrefixLength = 8

// SafeTruncate truncates s to at most maxLen bytes without panicking.
// A negative maxLen yields the empty string.
//
// Example:
//
//	SafeTruncate("very-long-token-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// TokenPrefix returns the loggable prefix of a credential, followed by an
// ellipsis when the value was shortened.
func TokenPrefix(token string) string {
	prefix := SafeTruncate(token, TokenLogPrefixLength)
	if prefix == token {
		return token
	}
	return prefix + "..."
}
