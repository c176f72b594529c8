package security

import (
	"crypto/rand"
	"fmt"
)

// Lengths of the opaque credentials minted by the server.
const (
	AuthorizationCodeLength = 32
	AuthorizationIDLength   = 16
	AccessTokenLength       = 32
	RefreshTokenLength      = 32

	// MinTokenLength is the shortest credential GenerateToken will produce.
	MinTokenLength = 16
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxUnbiasedByte is the largest multiple of len(tokenAlphabet) that fits in a
// byte. Bytes at or above it are discarded so that every symbol is equally likely.
const maxUnbiasedByte = 256 - 256%len(tokenAlphabet)

// GenerateToken returns a string of the given length drawn uniformly from the
// 62-symbol alphanumeric alphabet using crypto/rand.
//
// Lengths below MinTokenLength are raised to MinTokenLength. The function
// panics if the system's random number generator fails, which indicates a
// critical system-level failure.
func GenerateToken(length int) string {
	if length < MinTokenLength {
		length = MinTokenLength
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out)
}

// IsTokenAlphabet reports whether s consists only of symbols GenerateToken emits.
func IsTokenAlphabet(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
