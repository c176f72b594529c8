package oauth

import (
	"context"
	"encoding/json"
	"testing"
)

func TestTokenResponse_WireFormat(t *testing.T) {
	tests := []struct {
		name string
		resp TokenResponse
		want string
	}{
		{
			name: "authorization code grant",
			resp: TokenResponse{TokenType: "Bearer", AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600},
			want: `{"token_type":"Bearer","access_token":"at","refresh_token":"rt","expires_in":3600}`,
		},
		{
			name: "refresh grant omits refresh_token",
			resp: TokenResponse{TokenType: "Bearer", AccessToken: "at", ExpiresIn: 3600},
			want: `{"token_type":"Bearer","access_token":"at","expires_in":3600}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.resp)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestErrorResponse_WireFormat(t *testing.T) {
	got, err := json.Marshal(ErrorResponse{Error: ErrorCodeInvalidGrant})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(got) != `{"error":"invalid_grant"}` {
		t.Errorf("Marshal() = %s", got)
	}
}

func TestAccessTokenContext(t *testing.T) {
	if _, ok := AccessTokenFromContext(context.Background()); ok {
		t.Error("AccessTokenFromContext(empty) reported a token")
	}

	ctx := ContextWithAccessToken(context.Background(), "tok")
	got, ok := AccessTokenFromContext(ctx)
	if !ok || got != "tok" {
		t.Errorf("AccessTokenFromContext() = %q, %v; want tok, true", got, ok)
	}
}
