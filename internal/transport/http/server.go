package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"switchboard/internal/config"
	apierrors "switchboard/internal/errors"
	"switchboard/internal/infrastructure"
	"switchboard/internal/middleware"
	"switchboard/internal/routing"
)

// Server runs a router behind the HTTP middleware stack
type Server struct {
	http            *http.Server
	handler         http.Handler
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// Option configures a Server
type Option func(*serverOptions)

type serverOptions struct {
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
	extensions *routing.Extensions
}

// WithLogger sets the server logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *serverOptions) { o.logger = logger }
}

// WithGatherer sets the registry served at the metrics path
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *serverOptions) { o.gatherer = g }
}

// WithExtensions sets the extensions handed to every request
func WithExtensions(ext *routing.Extensions) Option {
	return func(o *serverOptions) { o.extensions = ext }
}

// NewServer builds the middleware stack around router. The metrics endpoint
// is the only path served outside the router; every other request,
// including unmatched methods, reaches the router and its fallback.
func NewServer(cfg *config.Config, router *routing.Router, opts ...Option) (*Server, error) {
	o := serverOptions{
		logger:   infrastructure.GetLogger(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(slog.String("component", "transport.server"))

	telemetry, err := middleware.NewOTelMiddleware()
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry middleware: %w", err)
	}
	errHandler := apierrors.NewErrorHandler(o.logger, cfg.Logging.Development)

	mux := chi.NewRouter()
	mux.Use(
		telemetry.Handler,
		middleware.RequestID,
		chimw.RealIP,
		middleware.StructuredLogger(o.logger),
		middleware.Recoverer(errHandler),
		middleware.SecurityHeaders,
	)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, errHandler, o.logger)
		mux.Use(limiter.Handler)
	}

	if cfg.Metrics.Enabled {
		mux.Method(http.MethodGet, cfg.Metrics.Path,
			promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError)}))
	}

	adapter := NewAdapter(router, o.extensions, errHandler, o.logger)
	mux.Handle("/*", adapter)
	mux.MethodNotAllowed(adapter.ServeHTTP)

	return &Server{
		http: &http.Server{
			Addr:           cfg.Server.Addr,
			Handler:        mux,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    cfg.Server.IdleTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
			ErrorLog:       slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		handler:         mux,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		logger:          logger,
	}, nil
}

// Handler returns the complete middleware stack
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx is cancelled, then
// shuts down gracefully. Upgraded connections are not part of the server's
// bookkeeping and outlive the shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.InfoContext(ctx, "server listening", slog.String("addr", ln.Addr().String()))
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()

		s.logger.InfoContext(ctx, "shutting down server", slog.Duration("timeout", s.shutdownTimeout))
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
