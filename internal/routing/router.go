package routing

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"switchboard/internal/metrics"
)

const tracerName = "switchboard/routing"

// Router dispatches requests by exact method and path. It is immutable once
// built and safe for concurrent use without locking.
type Router struct {
	handlers map[Route]Handler
	fallback Handler
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Process looks up the handler bound to the request's method and path and
// invokes it, or the fallback handler when nothing matches. Every call yields
// exactly one response.
func (r *Router) Process(ctx context.Context, req *Request) *Response {
	route := Route{Method: req.Method, Path: req.Path}
	h, ok := r.handlers[route]
	if !ok {
		h = r.fallback
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "router.process",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.route", req.Path),
			attribute.Bool("router.fallback", !ok),
		),
	)
	defer span.End()

	r.metrics.RecordDispatch(req.Method, !ok)
	if !ok {
		r.logger.DebugContext(ctx, "no route matched, using fallback",
			slog.String("method", req.Method),
			slog.String("path", req.Path))
	}

	resp := h(ctx, req)
	if resp == nil {
		r.logger.ErrorContext(ctx, "handler returned no response",
			slog.String("method", req.Method),
			slog.String("path", req.Path))
		resp = EmptyResponse(http.StatusInternalServerError)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	return resp
}

// Routes returns the registered routes sorted by path, then method
func (r *Router) Routes() []Route {
	routes := make([]Route, 0, len(r.handlers))
	for route := range r.handlers {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}
