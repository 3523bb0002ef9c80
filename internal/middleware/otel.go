package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"switchboard/internal/infrastructure"
)

const instrumentationName = "switchboard/http"

// OTelMiddleware opens a server span per request and records HTTP metrics
// through the global OpenTelemetry providers
type OTelMiddleware struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

// NewOTelMiddleware creates the middleware and its instruments
func NewOTelMiddleware() (*OTelMiddleware, error) {
	meter := otel.Meter(instrumentationName)

	requests, err := meter.Int64Counter("switchboard.http.requests",
		metric.WithDescription("HTTP requests served"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	duration, err := meter.Float64Histogram("switchboard.http.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	active, err := meter.Int64UpDownCounter("switchboard.http.active_requests",
		metric.WithDescription("HTTP requests in flight"))
	if err != nil {
		return nil, fmt.Errorf("failed to create active request counter: %w", err)
	}

	return &OTelMiddleware{
		tracer:   otel.Tracer(instrumentationName),
		requests: requests,
		duration: duration,
		active:   active,
	}, nil
}

// Handler returns the middleware handler function
func (m *OTelMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := m.tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPathKey.String(r.URL.Path),
				semconv.ServerAddressKey.String(r.Host),
				semconv.UserAgentOriginalKey.String(r.UserAgent()),
				semconv.ClientAddressKey.String(r.RemoteAddr),
			),
		)
		defer span.End()

		if span.SpanContext().IsValid() {
			ctx = infrastructure.WithTraceID(ctx, span.SpanContext().TraceID().String())
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.active.Add(ctx, 1)
		defer m.active.Add(ctx, -1)

		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		elapsed := time.Since(start)

		status := responseStatus(ww, r)
		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.Int("status_code", status),
		)
		m.requests.Add(ctx, 1, attrs)
		m.duration.Record(ctx, elapsed.Seconds(), attrs)

		span.SetAttributes(
			semconv.HTTPResponseStatusCodeKey.Int(status),
			semconv.HTTPResponseBodySizeKey.Int(ww.BytesWritten()),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
