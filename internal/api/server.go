// Package api exposes the relay, feed, admin and health endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dablocksplug-source/theblock-sub000/internal/authz"
	"github.com/dablocksplug-source/theblock-sub000/internal/feed"
	"github.com/dablocksplug-source/theblock-sub000/internal/indexer"
	"github.com/dablocksplug-source/theblock-sub000/internal/model"
	"github.com/dablocksplug-source/theblock-sub000/internal/ratelimit"
	"github.com/dablocksplug-source/theblock-sub000/internal/relay"
)

// Relayer runs both relay flows. *relay.Service satisfies it.
type Relayer interface {
	RelayAction(ctx context.Context, action model.SignedAction, sig authz.Signature) (relay.TxHandle, error)
	RelayActionWithPermit(ctx context.Context, action model.SignedAction, sig authz.Signature, permit model.SignedPermit, permitSig authz.Signature) (relay.TxHandle, error)
}

// Syncer is the sync engine as seen by the admin and health endpoints.
type Syncer interface {
	Sync(ctx context.Context, lookback uint64) (indexer.Report, error)
	Status() indexer.Status
}

// IdentityInspector reports the relayer identity check.
type IdentityInspector interface {
	Inspect(ctx context.Context) (relay.Identity, error)
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds HTTP-level settings. TrustedProxies lists the peers whose
// forwarding headers are honored when resolving the client address; when
// empty, the rate limit keys on the TCP peer.
type Config struct {
	AdminToken      string
	DefaultLookback uint64
	StoreTimeout    time.Duration
	TrustedProxies  []string
}

// Deps are the services behind the handlers.
type Deps struct {
	Relay   Relayer
	Feed    *feed.Service
	Sync    Syncer
	Guard   IdentityInspector
	Store   Pinger
	Limiter ratelimit.Limiter
}

// Server owns the gin router.
type Server struct {
	cfg    Config
	deps   Deps
	router *gin.Engine
	logger *zap.Logger
}

func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Warn("invalid trusted proxies, forwarding headers ignored", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}

	s := &Server{cfg: cfg, deps: deps, router: router, logger: logger}

	router.Use(requestLogger(logger), recovery(logger))

	router.GET("/health", s.health)

	limited := rateLimit(deps.Limiter, logger)

	relayGroup := router.Group("/relay")
	relayGroup.Use(limited)
	{
		relayGroup.POST("/action", s.relayAction)
		relayGroup.POST("/action-with-permit", s.relayActionWithPermit)
	}

	feedGroup := router.Group("/feed")
	{
		feedGroup.GET("/activity", s.activity)
		feedGroup.GET("/holders", s.holders)
	}

	adminGroup := router.Group("/admin")
	adminGroup.Use(limited, adminAuth(cfg.AdminToken))
	{
		adminGroup.POST("/sync", s.triggerSync)
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
