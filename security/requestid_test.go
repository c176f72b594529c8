package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	if len(id1) != RequestIDLength {
		t.Errorf("len(GenerateRequestID()) = %d, want %d", len(id1), RequestIDLength)
	}
	if id1 == id2 {
		t.Error("expected unique request IDs")
	}
	if !isValidRequestID(id1) {
		t.Errorf("generated ID %q does not pass validation", id1)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want req-123", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestIsValidRequestID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"alphanumeric", "abc123", true},
		{"uuid", "550e8400-e29b-41d4-a716-446655440000", true},
		{"underscores", "req_abc_123", true},
		{"max length", strings.Repeat("a", 128), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 129), false},
		{"CRLF", "id\r\nX-Injected: evil", false},
		{"spaces", "id with spaces", false},
		{"markup", "<script>alert(1)</script>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidRequestID(tt.id); got != tt.valid {
				t.Errorf("isValidRequestID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		upstream string
		keep     bool
	}{
		{"generates when absent", "", false},
		{"keeps valid upstream ID", "upstream-request-id-xyz", true},
		{"replaces invalid upstream ID", "<bad id>", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/oauth/token", nil)
			if tt.upstream != "" {
				req.Header.Set(RequestIDHeader, tt.upstream)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if seen == "" {
				t.Fatal("expected request ID in context")
			}
			if got := rec.Header().Get(RequestIDHeader); got != seen {
				t.Errorf("response header = %q, context = %q", got, seen)
			}
			if tt.keep && seen != tt.upstream {
				t.Errorf("request ID = %q, want upstream %q", seen, tt.upstream)
			}
			if !tt.keep && len(seen) != RequestIDLength {
				t.Errorf("generated request ID length = %d, want %d", len(seen), RequestIDLength)
			}
		})
	}
}
