package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"

	"github.com/giantswarm/oauth2-server/instrumentation"
)

// Operation names used in logs, metrics and span names.
const (
	OpInsertPendingAuthorization      = "insert_pending_authorization"
	OpFindPendingAuthorization        = "find_pending_authorization"
	OpInsertAuthorization             = "insert_authorization"
	OpFindAuthorizationByRefreshToken = "find_authorization_by_refresh_token"
	OpInsertAccessToken               = "insert_access_token"
	OpFindAccessToken                 = "find_access_token"
	OpAtomic                          = "atomic"
	OpPurgeExpired                    = "purge_expired"
)

// Operation results recorded on the storage.operation.total metric.
const (
	resultSuccess  = "success"
	resultNotFound = "not_found"
	resultAborted  = "aborted"
	resultError    = "error"
)

// Gateway is the only path to a Backend. Every operation holds a single
// weighted semaphore for its whole duration, so at most one statement or
// Atomic section runs at a time. A caller waiting for the lock blocks only
// its own goroutine and gives up when its context is done.
type Gateway struct {
	backend Backend
	sem     *semaphore.Weighted
	logger  *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithInstrumentation enables storage metrics and spans.
func WithInstrumentation(inst *instrumentation.Instrumentation) GatewayOption {
	return func(g *Gateway) {
		if inst != nil {
			g.instrumentation = inst
			g.tracer = inst.Tracer("storage")
		}
	}
}

// NewGateway wraps backend. The gateway takes ownership: Close closes the backend.
func NewGateway(backend Backend, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		backend: backend,
		sem:     semaphore.NewWeighted(1),
		logger:  slog.Default(),
		tracer:  tracenoop.NewTracerProvider().Tracer("storage"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Backend returns the wrapped backend name.
func (g *Gateway) Backend() string {
	return g.backend.Name()
}

// run executes fn while holding the gateway lock and records the outcome.
func (g *Gateway) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "storage."+op)
	defer span.End()
	instrumentation.AddStorageAttributes(span, op, g.backend.Name())

	if err := g.sem.Acquire(ctx, 1); err != nil {
		err = fmt.Errorf("acquire storage lock for %s: %w", op, err)
		g.record(ctx, span, op, err, start)
		return err
	}
	err := func() error {
		defer g.sem.Release(1)
		return fn(ctx)
	}()

	g.record(ctx, span, op, err, start)
	return err
}

func (g *Gateway) record(ctx context.Context, span trace.Span, op string, err error, start time.Time) {
	result := resultSuccess
	switch {
	case err == nil:
		instrumentation.SetSpanSuccess(span)
	case errors.Is(err, ErrNotFound):
		// absence is an expected answer, not a failure
		result = resultNotFound
	case errors.Is(err, ErrAborted):
		result = resultAborted
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrStorageResult, resultAborted))
	default:
		result = resultError
		instrumentation.RecordError(span, err)
		g.logger.Debug("Storage operation failed",
			"operation", op,
			"backend", g.backend.Name(),
			"error", err)
	}

	if g.instrumentation != nil {
		durationMs := float64(time.Since(start).Microseconds()) / 1000.0
		g.instrumentation.Metrics().RecordStorageOperation(ctx, op, result, durationMs)
	}
}

// InsertPendingAuthorization stores a newly issued authorization code.
func (g *Gateway) InsertPendingAuthorization(ctx context.Context, p *PendingAuthorization) error {
	return g.run(ctx, OpInsertPendingAuthorization, func(ctx context.Context) error {
		return g.backend.InsertPendingAuthorization(ctx, p)
	})
}

// FindPendingAuthorization looks up a pending authorization by code.
func (g *Gateway) FindPendingAuthorization(ctx context.Context, code string) (*PendingAuthorization, error) {
	var out *PendingAuthorization
	err := g.run(ctx, OpFindPendingAuthorization, func(ctx context.Context) error {
		var err error
		out, err = g.backend.FindPendingAuthorization(ctx, code)
		return err
	})
	return out, err
}

// InsertAuthorization stores a new authorization.
func (g *Gateway) InsertAuthorization(ctx context.Context, a *Authorization) error {
	return g.run(ctx, OpInsertAuthorization, func(ctx context.Context) error {
		return g.backend.InsertAuthorization(ctx, a)
	})
}

// FindAuthorizationByRefreshToken looks up the authorization owning refreshToken.
func (g *Gateway) FindAuthorizationByRefreshToken(ctx context.Context, refreshToken string) (*Authorization, error) {
	var out *Authorization
	err := g.run(ctx, OpFindAuthorizationByRefreshToken, func(ctx context.Context) error {
		var err error
		out, err = g.backend.FindAuthorizationByRefreshToken(ctx, refreshToken)
		return err
	})
	return out, err
}

// InsertAccessToken stores a newly issued access token.
func (g *Gateway) InsertAccessToken(ctx context.Context, t *AccessToken) error {
	return g.run(ctx, OpInsertAccessToken, func(ctx context.Context) error {
		return g.backend.InsertAccessToken(ctx, t)
	})
}

// FindAccessToken looks up an access token by value.
func (g *Gateway) FindAccessToken(ctx context.Context, accessToken string) (*AccessToken, error) {
	var out *AccessToken
	err := g.run(ctx, OpFindAccessToken, func(ctx context.Context) error {
		var err error
		out, err = g.backend.FindAccessToken(ctx, accessToken)
		return err
	})
	return out, err
}

// Atomic holds the gateway lock for the whole of fn and runs fn in a backend
// transaction: if fn returns an error, none of its writes persist. Errors
// wrapped with Abort are recorded as aborted, not as failures.
//
// fn must use only q. Calling back into the Gateway from fn deadlocks.
func (g *Gateway) Atomic(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	return g.run(ctx, OpAtomic, func(ctx context.Context) error {
		return g.backend.WithTx(ctx, fn)
	})
}

// PurgeExpired deletes pending authorizations and access tokens that expired
// at or before now.
func (g *Gateway) PurgeExpired(ctx context.Context, now time.Time) (PurgeResult, error) {
	var res PurgeResult
	err := g.run(ctx, OpPurgeExpired, func(ctx context.Context) error {
		var err error
		res, err = g.backend.DeleteExpired(ctx, now)
		return err
	})
	if err != nil {
		return PurgeResult{}, err
	}

	if g.instrumentation != nil {
		m := g.instrumentation.Metrics()
		m.RecordStoragePurge(ctx, "pending_authorization", res.PendingAuthorizations)
		m.RecordStoragePurge(ctx, "access_token", res.AccessTokens)
	}
	return res, nil
}

// Close waits for the in-flight operation, then closes the backend.
func (g *Gateway) Close() error {
	if err := g.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return g.backend.Close()
}
