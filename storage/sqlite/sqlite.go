package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/giantswarm/oauth2-server/storage"
)

// driverName is the database/sql driver registered by modernc.org/sqlite.
const driverName = "sqlite"

// Store is a storage.Backend on a single SQLite connection.
type Store struct {
	queries
	db *sql.DB
}

var _ storage.Backend = (*Store)(nil)

// DSN returns the connection string Open uses for path: foreign keys on,
// a busy timeout, and write-locking (IMMEDIATE) transactions. The path is
// percent-encoded so '?', '#' and '%' in file names survive URI parsing.
func DSN(path string) string {
	return "file:" + (&url.URL{Path: path}).EscapedPath() +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

// Open opens (creating if needed) the SQLite database at path, limits it to
// one connection and applies the embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open(driverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewStore(db), nil
}

// NewStore wraps an already migrated database handle. The store takes
// ownership of db; Close closes it.
func NewStore(db *sql.DB) *Store {
	return &Store{queries: queries{conn: db}, db: db}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Name implements storage.Backend.
func (s *Store) Name() string { return "sqlite" }

// Close implements storage.Backend.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx implements storage.Backend.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, q storage.Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	if err := fn(ctx, queries{conn: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// conn is satisfied by both *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements storage.Queries. Column lists are spelled out in every
// statement; times are stored as unix seconds.
type queries struct {
	conn conn
}

var _ storage.Queries = queries{}

func (q queries) InsertPendingAuthorization(ctx context.Context, p *storage.PendingAuthorization) error {
	_, err := q.conn.ExecContext(ctx,
		`INSERT INTO pending_authorizations (authorization_code, client_id, redirect_uri, expires_at)
		VALUES (?, ?, ?, ?)`,
		p.AuthorizationCode, p.ClientID, p.RedirectURI, p.ExpiresAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting pending authorization: %w", err)
	}
	return nil
}

func (q queries) FindPendingAuthorization(ctx context.Context, code string) (*storage.PendingAuthorization, error) {
	var (
		p         storage.PendingAuthorization
		expiresAt int64
	)
	err := q.conn.QueryRowContext(ctx,
		`SELECT authorization_code, client_id, redirect_uri, expires_at
		FROM pending_authorizations WHERE authorization_code = ?`,
		code,
	).Scan(&p.AuthorizationCode, &p.ClientID, &p.RedirectURI, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending authorization: %w", err)
	}
	p.ExpiresAt = time.Unix(expiresAt, 0)
	return &p, nil
}

func (q queries) DeletePendingAuthorization(ctx context.Context, code string) error {
	res, err := q.conn.ExecContext(ctx,
		`DELETE FROM pending_authorizations WHERE authorization_code = ?`, code)
	if err != nil {
		return fmt.Errorf("deleting pending authorization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (q queries) InsertAuthorization(ctx context.Context, a *storage.Authorization) error {
	_, err := q.conn.ExecContext(ctx,
		`INSERT INTO authorizations (authorization_id, client_id, client_secret, refresh_token)
		VALUES (?, ?, ?, ?)`,
		a.AuthorizationID, a.ClientID, a.ClientSecret, a.RefreshToken,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting authorization: %w", err)
	}
	return nil
}

func (q queries) FindAuthorizationByRefreshToken(ctx context.Context, refreshToken string) (*storage.Authorization, error) {
	var a storage.Authorization
	err := q.conn.QueryRowContext(ctx,
		`SELECT authorization_id, client_id, client_secret, refresh_token
		FROM authorizations WHERE refresh_token = ?`,
		refreshToken,
	).Scan(&a.AuthorizationID, &a.ClientID, &a.ClientSecret, &a.RefreshToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying authorization: %w", err)
	}
	return &a, nil
}

func (q queries) InsertAccessToken(ctx context.Context, t *storage.AccessToken) error {
	_, err := q.conn.ExecContext(ctx,
		`INSERT INTO access_tokens (access_token, expires_at, authorization_id)
		VALUES (?, ?, ?)`,
		t.AccessToken, t.ExpiresAt.Unix(), t.AuthorizationID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting access token: %w", err)
	}
	return nil
}

func (q queries) FindAccessToken(ctx context.Context, accessToken string) (*storage.AccessToken, error) {
	var (
		t         storage.AccessToken
		expiresAt int64
	)
	err := q.conn.QueryRowContext(ctx,
		`SELECT access_token, expires_at, authorization_id
		FROM access_tokens WHERE access_token = ?`,
		accessToken,
	).Scan(&t.AccessToken, &expiresAt, &t.AuthorizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying access token: %w", err)
	}
	t.ExpiresAt = time.Unix(expiresAt, 0)
	return &t, nil
}

func (q queries) DeleteExpired(ctx context.Context, now time.Time) (storage.PurgeResult, error) {
	var res storage.PurgeResult

	pending, err := q.conn.ExecContext(ctx,
		`DELETE FROM pending_authorizations WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return res, fmt.Errorf("deleting expired pending authorizations: %w", err)
	}
	if res.PendingAuthorizations, err = pending.RowsAffected(); err != nil {
		return res, fmt.Errorf("checking rows affected: %w", err)
	}

	tokens, err := q.conn.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return res, fmt.Errorf("deleting expired access tokens: %w", err)
	}
	if res.AccessTokens, err = tokens.RowsAffected(); err != nil {
		return res, fmt.Errorf("checking rows affected: %w", err)
	}

	return res, nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
