package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"switchboard/internal/config"
	"switchboard/internal/infrastructure"
	"switchboard/internal/metrics"
	"switchboard/internal/routing"
	transport "switchboard/internal/transport/http"
	"switchboard/internal/websocket"
	"switchboard/pkg/contracts"
	"switchboard/pkg/contracts/events"
)

// Version is reported by the health endpoint
const Version = contracts.Version

// stopTimeout bounds the flush of telemetry after the server has stopped
const stopTimeout = 5 * time.Second

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Registry      *prometheus.Registry
	Metrics       *metrics.Metrics
	OTelProviders *infrastructure.OTelProviders
	Router        *routing.Router
	Server        *transport.Server
	ChatHub       *websocket.Hub[events.ChatEvent]

	extensions *routing.Extensions
}

// NewApplication wires every component from cfg. A nil cfg is loaded from
// the usual sources.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		loaded, err := config.Load("")
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// must run before anything that creates instruments
	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger, infrastructure.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		Registry:      reg,
		Metrics:       metrics.New(reg),
		OTelProviders: otelProviders,
		ChatHub:       websocket.NewHub[events.ChatEvent](logger),
		extensions: routing.NewExtensions(Instance{
			Service:   cfg.Telemetry.ServiceName,
			Version:   Version,
			StartedAt: time.Now(),
		}),
	}

	app.Router, err = app.setupRouter()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to build router: %w", err), app.shutdownTelemetry())
	}

	app.Server, err = transport.NewServer(cfg, app.Router,
		transport.WithLogger(logger),
		transport.WithGatherer(reg),
		transport.WithExtensions(app.extensions),
	)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create server: %w", err), app.shutdownTelemetry())
	}

	for _, route := range app.Router.Routes() {
		logger.Debug("route registered", slog.String("route", route.String()))
	}

	return app, nil
}

// Run listens on the configured address until ctx is cancelled
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.Config.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve starts the chat hub and serves on ln until ctx is cancelled, then
// stops everything it started
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	a.Logger.InfoContext(ctx, "application starting",
		slog.String("service", a.Config.Telemetry.ServiceName),
		slog.String("version", Version),
		slog.String("addr", ln.Addr().String()))

	a.ChatHub.Start()
	serveErr := a.Server.Serve(ctx, ln)
	stopErr := a.Stop(context.WithoutCancel(ctx))

	return errors.Join(serveErr, stopErr)
}

// Stop stops the chat hub, flushes telemetry and closes the log file. The
// server itself stops when the context given to Serve is cancelled.
func (a *Application) Stop(ctx context.Context) error {
	stats := a.ChatHub.Stats()
	a.ChatHub.Stop()
	a.Logger.InfoContext(ctx, "chat hub stopped",
		slog.Int64("total_joined", stats["total_joined"]),
		slog.Int64("messages_sent", stats["messages_sent"]),
		slog.Int64("dropped", stats["dropped"]))

	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	var errs []error
	if err := a.OTelProviders.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down telemetry: %w", err))
	}

	a.Logger.InfoContext(ctx, "application stopped")
	if err := infrastructure.CloseLogger(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
	}
	return errors.Join(errs...)
}

func (a *Application) shutdownTelemetry() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return a.OTelProviders.Shutdown(ctx)
}
