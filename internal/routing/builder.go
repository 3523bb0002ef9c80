package routing

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"switchboard/internal/infrastructure"
	"switchboard/internal/metrics"
)

// ErrFallbackHandlerMissing is returned by Build when no fallback handler was installed
var ErrFallbackHandlerMissing = errors.New("handler for fallback case is not installed")

// Route identifies a handler by HTTP method and exact path
type Route struct {
	Method string
	Path   string
}

// String returns "METHOD /path"
func (r Route) String() string {
	return r.Method + " " + r.Path
}

// RoutesCollection groups routes under a common path prefix so they can be
// declared next to the code that serves them and merged into a builder.
type RoutesCollection struct {
	prefix   string
	handlers map[Route]Handler
}

// NewRoutes creates an empty collection. Every path added to it is joined
// onto prefix.
func NewRoutes(prefix string) *RoutesCollection {
	return &RoutesCollection{
		prefix:   strings.TrimSuffix(prefix, "/"),
		handlers: make(map[Route]Handler),
	}
}

// Route adds a handler for method and path
func (c *RoutesCollection) Route(method, path string, h Handler) *RoutesCollection {
	c.handlers[Route{Method: method, Path: c.prefix + path}] = h
	return c
}

// Get adds a GET handler
func (c *RoutesCollection) Get(path string, h Handler) *RoutesCollection {
	return c.Route(http.MethodGet, path, h)
}

// Post adds a POST handler
func (c *RoutesCollection) Post(path string, h Handler) *RoutesCollection {
	return c.Route(http.MethodPost, path, h)
}

// Builder accumulates routes and the fallback handler for a Router
type Builder struct {
	handlers map[Route]Handler
	fallback Handler
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{
		handlers: make(map[Route]Handler),
	}
}

// Route binds h to the exact method and path. A later registration of the
// same pair replaces the earlier one.
func (b *Builder) Route(method, path string, h Handler) *Builder {
	b.handlers[Route{Method: method, Path: path}] = h
	return b
}

// Get binds a GET handler
func (b *Builder) Get(path string, h Handler) *Builder {
	return b.Route(http.MethodGet, path, h)
}

// Post binds a POST handler
func (b *Builder) Post(path string, h Handler) *Builder {
	return b.Route(http.MethodPost, path, h)
}

// Put binds a PUT handler
func (b *Builder) Put(path string, h Handler) *Builder {
	return b.Route(http.MethodPut, path, h)
}

// Delete binds a DELETE handler
func (b *Builder) Delete(path string, h Handler) *Builder {
	return b.Route(http.MethodDelete, path, h)
}

// Routes merges every route of the collection
func (b *Builder) Routes(c *RoutesCollection) *Builder {
	for route, h := range c.handlers {
		b.handlers[route] = h
	}
	return b
}

// Fallback installs the handler invoked when no route matches
func (b *Builder) Fallback(h Handler) *Builder {
	b.fallback = h
	return b
}

// Logger sets the router's logger
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Metrics sets the collector recording dispatch outcomes
func (b *Builder) Metrics(m *metrics.Metrics) *Builder {
	b.metrics = m
	return b
}

// Build freezes the route table. It fails only when no fallback handler
// was installed.
func (b *Builder) Build() (*Router, error) {
	if b.fallback == nil {
		return nil, ErrFallbackHandlerMissing
	}

	logger := b.logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	handlers := make(map[Route]Handler, len(b.handlers))
	for route, h := range b.handlers {
		handlers[route] = h
	}

	return &Router{
		handlers: handlers,
		fallback: b.fallback,
		logger:   logger.With(slog.String("component", "router")),
		metrics:  b.metrics,
	}, nil
}
