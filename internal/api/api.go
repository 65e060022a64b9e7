// Package api provides the HTTP server for SegakAI.
//
// It exposes JSON endpoints for account sessions, plan generation, plan
// retrieval and admin-only application configuration. The server integrates
// the auth, genai, store and notify modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/segakai/segakai/internal/auth"
	"github.com/segakai/segakai/internal/genai"
	"github.com/segakai/segakai/internal/store"
	"github.com/segakai/segakai/internal/wizard"
)

// Server defaults.
const (
	DefaultServerAddress   = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultGeneratePerMin  = 6
	DefaultGenerateBurst   = 3
	// MaxRequestBodySize caps JSON request bodies (1MB).
	MaxRequestBodySize = 1 << 20
	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "segakai_session"
)

// PlannerSource yields the plan generator to use for one request. The
// generator may change between requests when API keys are reconfigured.
type PlannerSource interface {
	Planner(ctx context.Context) (genai.PlanGenerator, error)
}

// Worker is a background task run alongside the HTTP server until the
// server context is cancelled.
type Worker func(ctx context.Context) error

// Opts holds configuration for the API server.
type Opts struct {
	Addr            string
	SecureCookies   bool
	GeneratePerMin  int
	GenerateBurst   int
	Notifications   bool
	ShutdownTimeout time.Duration
	Catalog         *wizard.Catalog
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSecureCookies marks session cookies Secure.
func WithSecureCookies(secure bool) Option {
	return func(o *Opts) { o.SecureCookies = secure }
}

// WithGenerateRateLimit sets the per-user generation allowance.
func WithGenerateRateLimit(perMinute, burst int) Option {
	return func(o *Opts) {
		o.GeneratePerMin = perMinute
		o.GenerateBurst = burst
	}
}

// WithNotifications enables queueing plan-ready notifications after each
// persisted plan.
func WithNotifications(enabled bool) Option {
	return func(o *Opts) { o.Notifications = enabled }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// WithCatalog sets the question catalog used for server-side validation.
func WithCatalog(c *wizard.Catalog) Option {
	return func(o *Opts) { o.Catalog = c }
}

// Server holds the dependencies for the HTTP handlers.
type Server struct {
	st              store.Store
	auth            *auth.Service
	planner         PlannerSource
	catalog         *wizard.Catalog
	limiter         *userLimiter
	notifications   bool
	secureCookies   bool
	addr            string
	shutdownTimeout time.Duration
	handler         http.Handler
}

// NewServer creates a new API server with the given dependencies.
func NewServer(st store.Store, authSvc *auth.Service, planner PlannerSource, opts ...Option) *Server {
	cfg := Opts{
		Addr:            DefaultServerAddress,
		GeneratePerMin:  DefaultGeneratePerMin,
		GenerateBurst:   DefaultGenerateBurst,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = wizard.MustDefaultCatalog()
	}
	s := &Server{
		st:              st,
		auth:            authSvc,
		planner:         planner,
		catalog:         cfg.Catalog,
		limiter:         newUserLimiter(rate.Limit(float64(cfg.GeneratePerMin)/60.0), cfg.GenerateBurst),
		notifications:   cfg.Notifications,
		secureCookies:   cfg.SecureCookies,
		addr:            cfg.Addr,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/signup", s.signupHandler)
	mux.HandleFunc("/api/auth/login", s.loginHandler)
	mux.HandleFunc("/api/auth/logout", s.logoutHandler)
	mux.HandleFunc("/api/auth/me", s.meHandler)
	mux.HandleFunc("/api/auth/profile", s.profileHandler)
	mux.HandleFunc("/api/auth/password", s.passwordHandler)
	mux.HandleFunc("/api/generate", s.generateHandler)
	mux.HandleFunc("/api/plans", s.listPlansHandler)
	mux.HandleFunc("/api/plans/{id}", s.getPlanHandler)
	mux.HandleFunc("/api/config", s.configHandler)
	mux.HandleFunc("/api/admin/make-admin", s.makeAdminHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	return withRecovery(withLogging(mux))
}

// Run starts the HTTP server and the given workers, and blocks until ctx is
// cancelled or one of them fails. Shutdown is graceful within the configured
// timeout.
func (s *Server) Run(ctx context.Context, workers ...Worker) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln, workers...)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, workers ...Worker) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server.Run: API server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Server.Run: shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
		return nil
	})
	for _, w := range workers {
		w := w
		g.Go(func() error { return w(gctx) })
	}

	err := g.Wait()
	slog.Info("Server.Run: stopped", "error", err)
	return err
}
