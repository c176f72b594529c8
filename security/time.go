package security

import "time"

// Expiry instants are stored and compared at whole-second precision.

// ExpiresAt returns now+ttl truncated to whole seconds.
func ExpiresAt(now time.Time, ttl time.Duration) time.Time {
	return time.Unix(now.Add(ttl).Unix(), 0)
}

// IsExpired reports whether a credential expiring at expiresAt is no longer
// valid at now. Validity is strict: a credential is valid only while
// now < expiresAt, compared in unix seconds.
func IsExpired(expiresAt, now time.Time) bool {
	return now.Unix() >= expiresAt.Unix()
}

// RemainingSeconds returns expiresAt - now in whole seconds, the value
// reported as expires_in.
func RemainingSeconds(expiresAt, now time.Time) int64 {
	return expiresAt.Unix() - now.Unix()
}
