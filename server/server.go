package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth2-server/instrumentation"
	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/storage"
)

// Server implements the authorization code and refresh token grants for a
// static set of clients. It is transport-agnostic: the HTTP layer parses
// requests and maps the returned sentinel errors to responses.
type Server struct {
	registry *ClientRegistry
	gateway  *storage.Gateway

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config

	tracer trace.Tracer
	now    func() time.Time
}

// New creates a new authorization server over registry and gateway.
func New(
	registry *ClientRegistry,
	gateway *storage.Gateway,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("client registry is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("storage gateway is required")
	}
	if config == nil {
		config = &Config{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	return &Server{
		registry: registry,
		gateway:  gateway,
		Config:   config,
		Logger:   logger,
		tracer:   tracenoop.NewTracerProvider().Tracer("server"),
		now:      time.Now,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation enables flow metrics and spans
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// SetClock replaces the time source used for expiry decisions.
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Registry returns the client registry
func (s *Server) Registry() *ClientRegistry {
	return s.registry
}

// PurgeExpired deletes pending authorizations and access tokens that have
// expired by the server clock.
func (s *Server) PurgeExpired(ctx context.Context) (storage.PurgeResult, error) {
	return s.gateway.PurgeExpired(ctx, s.now())
}

// requestMeta extracts the audit metadata placed in ctx by the HTTP layer.
func requestMeta(ctx context.Context) (clientIP, requestID string) {
	return security.GetClientIP(ctx), security.GetRequestID(ctx)
}

func (s *Server) metrics() *instrumentation.Metrics {
	if s.Instrumentation == nil {
		return nil
	}
	return s.Instrumentation.Metrics()
}
