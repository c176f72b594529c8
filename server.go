package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/giantswarm/oauth2-server/security"
	"github.com/giantswarm/oauth2-server/server"
	"github.com/giantswarm/oauth2-server/storage"
	"github.com/giantswarm/oauth2-server/storage/sqlite"
)

// OAuth2Server wires storage, the grant logic and the HTTP handler into a
// component a host service embeds.
type OAuth2Server struct {
	server      *server.Server
	handler     *Handler
	gateway     *storage.Gateway
	rateLimiter *security.RateLimiter
	logger      *slog.Logger
	config      *Config

	stopPurge context.CancelFunc
	purgeDone chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New opens storage and builds an authorization server from config.
// ctx bounds opening and migrating the database only.
func New(ctx context.Context, config *Config) (*OAuth2Server, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	config = config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := config.Logger

	backend := config.Backend
	if backend == nil {
		store, err := sqlite.Open(ctx, config.DatabasePath)
		if err != nil {
			return nil, err
		}
		backend = store
	}

	gatewayOpts := []storage.GatewayOption{storage.WithLogger(logger)}
	if config.Instrumentation != nil {
		gatewayOpts = append(gatewayOpts, storage.WithInstrumentation(config.Instrumentation))
	}
	gateway := storage.NewGateway(backend, gatewayOpts...)

	srv, err := server.New(server.NewClientRegistry(config.Clients), gateway, config.serverConfig(), logger)
	if err != nil {
		_ = gateway.Close()
		return nil, err
	}
	srv.SetAuditor(security.NewAuditor(logger, config.Security.EnableAuditLogging))
	if config.Instrumentation != nil {
		srv.SetInstrumentation(config.Instrumentation)
	}

	handler := NewHandler(srv, logger)
	handler.SetPathPrefix(config.PathPrefix)
	handler.SetProxyConfig(config.proxyConfig())

	s := &OAuth2Server{
		server:  srv,
		handler: handler,
		gateway: gateway,
		logger:  logger,
		config:  config,
	}

	if config.RateLimit.Rate > 0 {
		s.rateLimiter = security.NewRateLimiter(config.RateLimit, logger)
		handler.SetRateLimiter(s.rateLimiter)
	}

	if config.CleanupInterval > 0 {
		purgeCtx, cancel := context.WithCancel(context.Background())
		s.stopPurge = cancel
		s.purgeDone = make(chan struct{})
		go s.purgeLoop(purgeCtx, config.CleanupInterval)
	}

	logger.Info("OAuth2 server initialized",
		"storage", gateway.Backend(),
		"clients", srv.Registry().ClientIDs(),
		"path_prefix", config.PathPrefix)

	return s, nil
}

// Handler returns an http.Handler serving the authorization and token
// endpoints under Config.PathPrefix.
func (s *OAuth2Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handler.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes mounts the endpoints on an existing mux.
func (s *OAuth2Server) RegisterRoutes(mux *http.ServeMux) {
	s.handler.RegisterRoutes(mux)
}

// HTTPHandler returns the underlying Handler.
func (s *OAuth2Server) HTTPHandler() *Handler {
	return s.handler
}

// ValidateToken is middleware admitting only requests with a valid access token.
func (s *OAuth2Server) ValidateToken(next http.Handler) http.Handler {
	return s.handler.ValidateToken(next)
}

// CheckAccess reports whether accessToken is known and unexpired. Unknown
// tokens yield false with a nil error; storage failures return an error.
func (s *OAuth2Server) CheckAccess(ctx context.Context, accessToken string) (bool, error) {
	return s.server.CheckAccess(ctx, accessToken)
}

// Server returns the grant logic for direct, non-HTTP use.
func (s *OAuth2Server) Server() *server.Server {
	return s.server
}

// PurgeExpired deletes authorization codes and access tokens that have
// expired by the server clock. The background purge calls it every
// Config.CleanupInterval.
func (s *OAuth2Server) PurgeExpired(ctx context.Context) (storage.PurgeResult, error) {
	return s.server.PurgeExpired(ctx)
}

func (s *OAuth2Server) purgeLoop(ctx context.Context, interval time.Duration) {
	defer close(s.purgeDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("Failed to purge expired records", "error", err)
				}
				continue
			}
			if res.Total() > 0 {
				s.logger.Debug("Purged expired records",
					"pending_authorizations", res.PendingAuthorizations,
					"access_tokens", res.AccessTokens)
			}
		}
	}
}

// Close stops background work and closes storage, waiting for the
// in-flight storage operation. It is safe to call more than once.
func (s *OAuth2Server) Close() error {
	s.closeOnce.Do(func() {
		if s.stopPurge != nil {
			s.stopPurge()
			<-s.purgeDone
		}
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		s.closeErr = s.gateway.Close()
	})
	return s.closeErr
}
