package security

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPContextKey struct{}

// WithClientIP stores the resolved client address in ctx for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// GetClientIP returns the client address stored by WithClientIP, or "".
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey{}).(string); ok {
		return ip
	}
	return ""
}

// ProxyConfig describes the reverse proxies in front of the server.
type ProxyConfig struct {
	// Trust enables X-Forwarded-For / X-Real-IP handling. Only enable it
	// behind a reverse proxy that overwrites these headers.
	Trust bool

	// TrustedCount is how many proxies, counted from the right of
	// X-Forwarded-For, belong to the deployment. Zero means one.
	TrustedCount int
}

// ClientIP returns the address used to key rate limits and audit events.
//
// With Trust set, the X-Forwarded-For entry just left of the trusted proxies
// wins, then X-Real-IP. Otherwise, or when neither header holds a valid
// address, the host part of RemoteAddr is used.
func (p ProxyConfig) ClientIP(r *http.Request) string {
	if p.Trust {
		if ip, ok := forwardedFor(r.Header.Get("X-Forwarded-For"), p.TrustedCount); ok {
			return ip
		}
		if ip, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}
	return remoteHost(r.RemoteAddr)
}

// forwardedFor picks the client entry of "client, proxy1, ..., proxyN".
func forwardedFor(header string, trusted int) (string, bool) {
	if header == "" {
		return "", false
	}
	if trusted <= 0 {
		trusted = 1
	}

	hops := strings.Split(header, ",")
	idx := len(hops) - trusted - 1
	if idx < 0 {
		idx = 0
	}
	return parseAddr(hops[idx])
}

func parseAddr(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.String(), true
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
