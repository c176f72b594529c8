package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/storage"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memory store is closed")

// Store is an in-memory storage.Backend.
type Store struct {
	mu     sync.Mutex
	t      tables
	closed bool
}

var _ storage.Backend = (*Store)(nil)

// tables holds the rows. Access is guarded by Store.mu.
type tables struct {
	pending        map[string]storage.PendingAuthorization // by authorization code
	authorizations map[string]storage.Authorization        // by authorization id
	byRefreshToken map[string]string                       // refresh token -> authorization id
	accessTokens   map[string]storage.AccessToken          // by access token
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		t: tables{
			pending:        make(map[string]storage.PendingAuthorization),
			authorizations: make(map[string]storage.Authorization),
			byRefreshToken: make(map[string]string),
			accessTokens:   make(map[string]storage.AccessToken),
		},
	}
}

// Name implements storage.Backend.
func (s *Store) Name() string { return "memory" }

// Close implements storage.Backend. Data is dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Counts returns the number of rows per table.
func (s *Store) Counts() (pending, authorizations, accessTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.t.pending), len(s.t.authorizations), len(s.t.accessTokens)
}

// autocommit runs fn as a single-statement transaction.
func (s *Store) autocommit(fn func(tx *txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	tx := &txn{t: &s.t}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// WithTx implements storage.Backend. The store is locked for the whole of fn;
// on error every write made through q is undone in reverse order.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, q storage.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &txn{t: &s.t}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) InsertPendingAuthorization(ctx context.Context, p *storage.PendingAuthorization) error {
	return s.autocommit(func(tx *txn) error { return tx.InsertPendingAuthorization(ctx, p) })
}

func (s *Store) FindPendingAuthorization(ctx context.Context, code string) (*storage.PendingAuthorization, error) {
	var out *storage.PendingAuthorization
	err := s.autocommit(func(tx *txn) error {
		var err error
		out, err = tx.FindPendingAuthorization(ctx, code)
		return err
	})
	return out, err
}

func (s *Store) DeletePendingAuthorization(ctx context.Context, code string) error {
	return s.autocommit(func(tx *txn) error { return tx.DeletePendingAuthorization(ctx, code) })
}

func (s *Store) InsertAuthorization(ctx context.Context, a *storage.Authorization) error {
	return s.autocommit(func(tx *txn) error { return tx.InsertAuthorization(ctx, a) })
}

func (s *Store) FindAuthorizationByRefreshToken(ctx context.Context, refreshToken string) (*storage.Authorization, error) {
	var out *storage.Authorization
	err := s.autocommit(func(tx *txn) error {
		var err error
		out, err = tx.FindAuthorizationByRefreshToken(ctx, refreshToken)
		return err
	})
	return out, err
}

func (s *Store) InsertAccessToken(ctx context.Context, t *storage.AccessToken) error {
	return s.autocommit(func(tx *txn) error { return tx.InsertAccessToken(ctx, t) })
}

func (s *Store) FindAccessToken(ctx context.Context, accessToken string) (*storage.AccessToken, error) {
	var out *storage.AccessToken
	err := s.autocommit(func(tx *txn) error {
		var err error
		out, err = tx.FindAccessToken(ctx, accessToken)
		return err
	})
	return out, err
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (storage.PurgeResult, error) {
	var res storage.PurgeResult
	err := s.autocommit(func(tx *txn) error {
		var err error
		res, err = tx.DeleteExpired(ctx, now)
		return err
	})
	return res, err
}

// txn applies statements to the tables and keeps an undo log.
type txn struct {
	t    *tables
	undo []func()
}

var _ storage.Queries = (*txn)(nil)

func (tx *txn) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *txn) InsertPendingAuthorization(_ context.Context, p *storage.PendingAuthorization) error {
	if _, exists := tx.t.pending[p.AuthorizationCode]; exists {
		return storage.ErrAlreadyExists
	}
	code := p.AuthorizationCode
	tx.t.pending[code] = *p
	tx.undo = append(tx.undo, func() { delete(tx.t.pending, code) })
	return nil
}

func (tx *txn) FindPendingAuthorization(_ context.Context, code string) (*storage.PendingAuthorization, error) {
	p, ok := tx.t.pending[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (tx *txn) DeletePendingAuthorization(_ context.Context, code string) error {
	p, ok := tx.t.pending[code]
	if !ok {
		return storage.ErrNotFound
	}
	delete(tx.t.pending, code)
	tx.undo = append(tx.undo, func() { tx.t.pending[code] = p })
	return nil
}

func (tx *txn) InsertAuthorization(_ context.Context, a *storage.Authorization) error {
	if _, exists := tx.t.authorizations[a.AuthorizationID]; exists {
		return storage.ErrAlreadyExists
	}
	if _, exists := tx.t.byRefreshToken[a.RefreshToken]; exists {
		return storage.ErrAlreadyExists
	}
	id, refresh := a.AuthorizationID, a.RefreshToken
	tx.t.authorizations[id] = *a
	tx.t.byRefreshToken[refresh] = id
	tx.undo = append(tx.undo, func() {
		delete(tx.t.authorizations, id)
		delete(tx.t.byRefreshToken, refresh)
	})
	return nil
}

func (tx *txn) FindAuthorizationByRefreshToken(_ context.Context, refreshToken string) (*storage.Authorization, error) {
	id, ok := tx.t.byRefreshToken[refreshToken]
	if !ok {
		return nil, storage.ErrNotFound
	}
	a := tx.t.authorizations[id]
	return &a, nil
}

func (tx *txn) InsertAccessToken(_ context.Context, t *storage.AccessToken) error {
	if _, exists := tx.t.accessTokens[t.AccessToken]; exists {
		return storage.ErrAlreadyExists
	}
	if _, ok := tx.t.authorizations[t.AuthorizationID]; !ok {
		return fmt.Errorf("access token references unknown authorization: %w", storage.ErrNotFound)
	}
	token := t.AccessToken
	tx.t.accessTokens[token] = *t
	tx.undo = append(tx.undo, func() { delete(tx.t.accessTokens, token) })
	return nil
}

func (tx *txn) FindAccessToken(_ context.Context, accessToken string) (*storage.AccessToken, error) {
	t, ok := tx.t.accessTokens[accessToken]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &t, nil
}

func (tx *txn) DeleteExpired(_ context.Context, now time.Time) (storage.PurgeResult, error) {
	var res storage.PurgeResult
	for code, p := range tx.t.pending {
		if security.IsExpired(p.ExpiresAt, now) {
			delete(tx.t.pending, code)
			tx.undo = append(tx.undo, func() { tx.t.pending[code] = p })
			res.PendingAuthorizations++
		}
	}
	for token, t := range tx.t.accessTokens {
		if security.IsExpired(t.ExpiresAt, now) {
			delete(tx.t.accessTokens, token)
			tx.undo = append(tx.undo, func() { tx.t.accessTokens[token] = t })
			res.AccessTokens++
		}
	}
	return res, nil
}
