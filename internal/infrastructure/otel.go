package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"

	"switchboard/internal/config"
	"switchboard/pkg/contracts"
)

// ServiceVersion is reported as the service.version resource attribute
const ServiceVersion = contracts.Version

// OTelProviders holds the installed OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	logger         *slog.Logger
}

// OTelOption customises InitializeOTel
type OTelOption func(*otelOptions)

type otelOptions struct {
	registerer  prometheus.Registerer
	traceWriter io.Writer
}

// WithRegisterer exports OTel instruments into reg instead of the default
// Prometheus registry
func WithRegisterer(reg prometheus.Registerer) OTelOption {
	return func(o *otelOptions) { o.registerer = reg }
}

// WithTraceWriter redirects the stdout trace exporter
func WithTraceWriter(w io.Writer) OTelOption {
	return func(o *otelOptions) { o.traceWriter = w }
}

// InitializeOTel installs global tracer and meter providers. Meter
// instruments are exported through Prometheus so they share the scrape
// endpoint with the native collectors. Spans go to stdout or nowhere.
func InitializeOTel(cfg config.TelemetryConfig, logger *slog.Logger, opts ...OTelOption) (*OTelProviders, error) {
	o := otelOptions{registerer: prometheus.DefaultRegisterer, traceWriter: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	providers := &OTelProviders{logger: logger}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", uuid.NewString()),
	)

	switch cfg.TraceExporter {
	case "stdout":
		spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(o.traceWriter))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		providers.TracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spanExporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		)
	case "none", "":
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(o.registerer))
	if err != nil {
		if providers.TracerProvider != nil {
			_ = providers.TracerProvider.Shutdown(ctx)
		}
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	providers.MeterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(providers.MeterProvider)
	if providers.TracerProvider != nil {
		otel.SetTracerProvider(providers.TracerProvider)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return providers, nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
	return nil
}
