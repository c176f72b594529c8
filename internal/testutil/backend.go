package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-server/storage"
)

// RunBackendSuite runs the behavior every storage.Backend must provide.
// newBackend must return an empty backend; the suite closes it.
func RunBackendSuite(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	t.Helper()

	tests := []struct {
		name string
		run  func(t *testing.T, b storage.Backend)
	}{
		{"PendingAuthorizationRoundTrip", testPendingAuthorizationRoundTrip},
		{"PendingAuthorizationDuplicate", testPendingAuthorizationDuplicate},
		{"DeletePendingAuthorization", testDeletePendingAuthorization},
		{"AuthorizationByRefreshToken", testAuthorizationByRefreshToken},
		{"AuthorizationDuplicateRefreshToken", testAuthorizationDuplicateRefreshToken},
		{"AccessTokenRoundTrip", testAccessTokenRoundTrip},
		{"AccessTokenUnknownAuthorization", testAccessTokenUnknownAuthorization},
		{"NotFound", testNotFound},
		{"TxCommit", testTxCommit},
		{"TxRollback", testTxRollback},
		{"DeleteExpired", testDeleteExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			t.Cleanup(func() { _ = b.Close() })
			tt.run(t, b)
		})
	}
}

func testPendingAuthorizationRoundTrip(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	want := NewPendingAuthorization(Epoch.Add(10 * time.Minute))

	AssertNoError(t, b.InsertPendingAuthorization(ctx, want))

	got, err := b.FindPendingAuthorization(ctx, want.AuthorizationCode)
	AssertNoError(t, err)
	AssertEqual(t, got.AuthorizationCode, want.AuthorizationCode)
	AssertEqual(t, got.ClientID, want.ClientID)
	AssertEqual(t, got.RedirectURI, want.RedirectURI)
	AssertEqual(t, got.ExpiresAt.Unix(), want.ExpiresAt.Unix())
}

func testPendingAuthorizationDuplicate(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	p := NewPendingAuthorization(Epoch)

	AssertNoError(t, b.InsertPendingAuthorization(ctx, p))
	AssertErrorIs(t, b.InsertPendingAuthorization(ctx, p), storage.ErrAlreadyExists)
}

func testDeletePendingAuthorization(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	p := NewPendingAuthorization(Epoch)

	AssertNoError(t, b.InsertPendingAuthorization(ctx, p))
	AssertNoError(t, b.DeletePendingAuthorization(ctx, p.AuthorizationCode))

	_, err := b.FindPendingAuthorization(ctx, p.AuthorizationCode)
	AssertErrorIs(t, err, storage.ErrNotFound)
	AssertErrorIs(t, b.DeletePendingAuthorization(ctx, p.AuthorizationCode), storage.ErrNotFound)
}

func testAuthorizationByRefreshToken(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	want := NewAuthorization()

	AssertNoError(t, b.InsertAuthorization(ctx, want))

	got, err := b.FindAuthorizationByRefreshToken(ctx, want.RefreshToken)
	AssertNoError(t, err)
	AssertEqual(t, *got, *want)
}

func testAuthorizationDuplicateRefreshToken(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	first := NewAuthorization()
	second := NewAuthorization()
	second.RefreshToken = first.RefreshToken

	AssertNoError(t, b.InsertAuthorization(ctx, first))
	AssertErrorIs(t, b.InsertAuthorization(ctx, second), storage.ErrAlreadyExists)
}

func testAccessTokenRoundTrip(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	a := NewAuthorization()
	AssertNoError(t, b.InsertAuthorization(ctx, a))

	want := NewAccessToken(a.AuthorizationID, Epoch.Add(time.Hour))
	AssertNoError(t, b.InsertAccessToken(ctx, want))

	got, err := b.FindAccessToken(ctx, want.AccessToken)
	AssertNoError(t, err)
	AssertEqual(t, got.AccessToken, want.AccessToken)
	AssertEqual(t, got.AuthorizationID, a.AuthorizationID)
	AssertEqual(t, got.ExpiresAt.Unix(), want.ExpiresAt.Unix())
}

func testAccessTokenUnknownAuthorization(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	tok := NewAccessToken("no-such-authorization", Epoch.Add(time.Hour))

	AssertError(t, b.InsertAccessToken(ctx, tok))

	_, err := b.FindAccessToken(ctx, tok.AccessToken)
	AssertErrorIs(t, err, storage.ErrNotFound)
}

func testNotFound(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	_, err := b.FindPendingAuthorization(ctx, "missing")
	AssertErrorIs(t, err, storage.ErrNotFound)

	_, err = b.FindAuthorizationByRefreshToken(ctx, "missing")
	AssertErrorIs(t, err, storage.ErrNotFound)

	_, err = b.FindAccessToken(ctx, "missing")
	AssertErrorIs(t, err, storage.ErrNotFound)
}

func testTxCommit(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	p := NewPendingAuthorization(Epoch.Add(time.Minute))
	a := NewAuthorization()
	tok := NewAccessToken(a.AuthorizationID, Epoch.Add(time.Hour))
	AssertNoError(t, b.InsertPendingAuthorization(ctx, p))

	err := b.WithTx(ctx, func(ctx context.Context, q storage.Queries) error {
		if err := q.DeletePendingAuthorization(ctx, p.AuthorizationCode); err != nil {
			return err
		}
		if err := q.InsertAuthorization(ctx, a); err != nil {
			return err
		}
		return q.InsertAccessToken(ctx, tok)
	})
	AssertNoError(t, err)

	_, err = b.FindPendingAuthorization(ctx, p.AuthorizationCode)
	AssertErrorIs(t, err, storage.ErrNotFound)
	_, err = b.FindAuthorizationByRefreshToken(ctx, a.RefreshToken)
	AssertNoError(t, err)
	_, err = b.FindAccessToken(ctx, tok.AccessToken)
	AssertNoError(t, err)
}

func testTxRollback(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	p := NewPendingAuthorization(Epoch.Add(time.Minute))
	a := NewAuthorization()
	AssertNoError(t, b.InsertPendingAuthorization(ctx, p))

	errAbort := errors.New("abort")
	err := b.WithTx(ctx, func(ctx context.Context, q storage.Queries) error {
		if err := q.DeletePendingAuthorization(ctx, p.AuthorizationCode); err != nil {
			return err
		}
		if err := q.InsertAuthorization(ctx, a); err != nil {
			return err
		}
		// reads inside the transaction observe its own writes
		if _, err := q.FindPendingAuthorization(ctx, p.AuthorizationCode); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("in-tx FindPendingAuthorization error = %v, want ErrNotFound", err)
		}
		return errAbort
	})
	AssertErrorIs(t, err, errAbort)

	got, err := b.FindPendingAuthorization(ctx, p.AuthorizationCode)
	AssertNoError(t, err)
	AssertEqual(t, got.ClientID, p.ClientID)

	_, err = b.FindAuthorizationByRefreshToken(ctx, a.RefreshToken)
	AssertErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteExpired(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	now := Epoch

	expiredCode := NewPendingAuthorization(now)
	liveCode := NewPendingAuthorization(now.Add(time.Second))
	AssertNoError(t, b.InsertPendingAuthorization(ctx, expiredCode))
	AssertNoError(t, b.InsertPendingAuthorization(ctx, liveCode))

	a := NewAuthorization()
	AssertNoError(t, b.InsertAuthorization(ctx, a))
	expiredTok := NewAccessToken(a.AuthorizationID, now.Add(-time.Hour))
	liveTok := NewAccessToken(a.AuthorizationID, now.Add(time.Hour))
	AssertNoError(t, b.InsertAccessToken(ctx, expiredTok))
	AssertNoError(t, b.InsertAccessToken(ctx, liveTok))

	res, err := b.DeleteExpired(ctx, now)
	AssertNoError(t, err)
	AssertEqual(t, res, storage.PurgeResult{PendingAuthorizations: 1, AccessTokens: 1})

	_, err = b.FindPendingAuthorization(ctx, expiredCode.AuthorizationCode)
	AssertErrorIs(t, err, storage.ErrNotFound)
	_, err = b.FindPendingAuthorization(ctx, liveCode.AuthorizationCode)
	AssertNoError(t, err)
	_, err = b.FindAccessToken(ctx, expiredTok.AccessToken)
	AssertErrorIs(t, err, storage.ErrNotFound)
	_, err = b.FindAccessToken(ctx, liveTok.AccessToken)
	AssertNoError(t, err)

	// authorizations outlive their access tokens
	_, err = b.FindAuthorizationByRefreshToken(ctx, a.RefreshToken)
	AssertNoError(t, err)
}
