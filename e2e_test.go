package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-server/internal/testutil"
)

// setupE2E starts an HTTP server backed by a SQLite database with a
// protected resource at /api/resource.
func setupE2E(t *testing.T) (*OAuth2Server, *httptest.Server, *oauth2.Config) {
	t.Helper()

	srv, err := New(context.Background(), &Config{
		DatabasePath: filepath.Join(t.TempDir(), "oauth.db"),
		Clients:      testClients(),
		BcryptCost:   bcrypt.MinCost,
		Security:     SecurityConfig{EnableAuditLogging: true},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	mux.Handle("/api/resource", srv.ValidateToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AccessTokenFromContext(r.Context()); !ok {
			http.Error(w, "no token in context", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})))

	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})

	conf := &oauth2.Config{
		ClientID:     testutil.TestClientID,
		ClientSecret: testutil.TestClientSecret,
		RedirectURL:  testutil.TestRedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + "/oauth/authorization",
			TokenURL:  ts.URL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return srv, ts, conf
}

// authorize follows the authorization endpoint up to the redirect and
// returns the code after checking the echoed state.
func authorize(t *testing.T, conf *oauth2.Config, state string) string {
	t.Helper()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(conf.AuthCodeURL(state))
	if err != nil {
		t.Fatalf("authorization request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("authorization status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("failed to parse Location: %v", err)
	}
	if got := location.Query().Get("state"); got != state {
		t.Fatalf("state = %q, want %q", got, state)
	}
	return location.Query().Get("code")
}

func TestE2E_AuthorizationCodeFlow(t *testing.T) {
	srv, ts, conf := setupE2E(t)
	ctx := context.Background()

	code := authorize(t, conf, "state-123")

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if !tok.Valid() {
		t.Fatal("exchanged token is not valid")
	}
	if tok.RefreshToken == "" {
		t.Error("exchange should return a refresh token")
	}
	if remaining := time.Until(tok.Expiry); remaining < 59*time.Minute || remaining > time.Hour {
		t.Errorf("token expiry in %v, want about 1h", remaining)
	}

	granted, err := srv.CheckAccess(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if !granted {
		t.Error("CheckAccess() should grant the issued token")
	}

	resp, err := conf.Client(ctx, tok).Get(ts.URL + "/api/resource")
	if err != nil {
		t.Fatalf("protected request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("protected status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// replaying the code fails
	_, err = conf.Exchange(ctx, code)
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Fatalf("replayed Exchange() error = %v, want *oauth2.RetrieveError", err)
	}
	if retrieveErr.ErrorCode != ErrorCodeInvalidGrant {
		t.Errorf("ErrorCode = %q, want %q", retrieveErr.ErrorCode, ErrorCodeInvalidGrant)
	}
}

func TestE2E_RefreshTokenFlow(t *testing.T) {
	srv, ts, conf := setupE2E(t)
	ctx := context.Background()

	tok, err := conf.Exchange(ctx, authorize(t, conf, "s"))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	// force the token source to refresh
	stale := &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	refreshed, err := conf.TokenSource(ctx, stale).Token()
	if err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if refreshed.AccessToken == tok.AccessToken {
		t.Error("refresh should issue a new access token")
	}
	if refreshed.RefreshToken != tok.RefreshToken {
		t.Error("refresh token should be kept")
	}

	for _, accessToken := range []string{tok.AccessToken, refreshed.AccessToken} {
		granted, err := srv.CheckAccess(ctx, accessToken)
		if err != nil {
			t.Fatalf("CheckAccess() error = %v", err)
		}
		if !granted {
			t.Error("both access tokens should stay valid")
		}
	}

	resp, err := conf.Client(ctx, refreshed).Get(ts.URL + "/api/resource")
	if err != nil {
		t.Fatalf("protected request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("protected status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestE2E_WrongClientSecret(t *testing.T) {
	_, _, conf := setupE2E(t)
	code := authorize(t, conf, "s")

	bad := *conf
	bad.ClientSecret = "wrong"
	_, err := bad.Exchange(context.Background(), code)

	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		t.Fatalf("Exchange() error = %v, want *oauth2.RetrieveError", err)
	}
	if retrieveErr.ErrorCode != ErrorCodeInvalidGrant {
		t.Errorf("ErrorCode = %q, want %q", retrieveErr.ErrorCode, ErrorCodeInvalidGrant)
	}

	// the code survives a rejected exchange
	if _, err := conf.Exchange(context.Background(), code); err != nil {
		t.Errorf("Exchange() with the right secret error = %v", err)
	}
}

func TestE2E_ProtectedResourceWithoutToken(t *testing.T) {
	_, ts, _ := setupE2E(t)

	resp, err := http.Get(ts.URL + "/api/resource")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
