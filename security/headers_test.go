package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		tls      bool
		wantHSTS bool
	}{
		{"plain HTTP", false, false},
		{"TLS", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/oauth/authorization", nil)
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}
			w := httptest.NewRecorder()

			SetSecurityHeaders(w, r)

			want := map[string]string{
				"X-Frame-Options":         "DENY",
				"X-Content-Type-Options":  "nosniff",
				"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
				"Referrer-Policy":         "no-referrer",
				"Cache-Control":           "no-store",
				"Pragma":                  "no-cache",
			}
			for header, value := range want {
				if got := w.Header().Get(header); got != value {
					t.Errorf("%s = %q, want %q", header, got, value)
				}
			}

			hsts := w.Header().Get("Strict-Transport-Security")
			if tt.wantHSTS && hsts != "max-age=31536000; includeSubDomains" {
				t.Errorf("Strict-Transport-Security = %q, want HSTS", hsts)
			}
			if !tt.wantHSTS && hsts != "" {
				t.Errorf("Strict-Transport-Security should not be set over plain HTTP, got %q", hsts)
			}
		})
	}
}
