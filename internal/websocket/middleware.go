package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"

	"switchboard/internal/infrastructure"
	"switchboard/internal/metrics"
	"switchboard/internal/routing"
)

// Origin is what a handshake request carries into the typed request content
type Origin struct {
	Method     string
	Path       string
	RawQuery   string
	Query      url.Values
	Header     http.Header
	RemoteAddr string
	Extensions *routing.Extensions
}

// Request is the typed request seen by a WebSocket handler
type Request[C, S any] struct {
	Content C
	Upgrade Upgrade[S]
}

// Upgrade is the capability to use the connection once the transport has
// handed it over. It is not usable until then: the handler registers what
// to run through OnUpgraded.
type Upgrade[S any] struct {
	converter  StreamConverter[S]
	extensions *routing.Extensions
}

// OnUpgraded returns the response that accepts the handshake and runs fn in
// the background with the converted stream. The connection is closed when fn
// returns.
func (u Upgrade[S]) OnUpgraded(fn func(ctx context.Context, stream S) error) Response {
	return Response{
		upgraded: func(ctx context.Context, conn Conn) error {
			stream, err := u.converter.ConvertStream(ctx, conn, u.extensions)
			if err != nil {
				return fmt.Errorf("convert stream: %w", err)
			}
			return fn(ctx, stream)
		},
	}
}

// Response is a WebSocket handler's answer to a valid handshake
type Response struct {
	upgraded func(ctx context.Context, conn Conn) error
	reject   *routing.Response
}

// Reject answers a valid handshake with a plain HTTP response instead of
// switching protocols
func Reject(resp *routing.Response) Response {
	return Response{reject: resp}
}

// Option configures a Middleware
type Option func(*settings)

type settings struct {
	config             Config
	codec              FrameCodec
	abortOnWrongMethod bool
	onDone             func(error)
	logger             *slog.Logger
	metrics            *metrics.Metrics
}

// WithConfig sets the framing limits for upgraded connections
func WithConfig(cfg Config) Option {
	return func(s *settings) { s.config = cfg }
}

// WithFrameCodec replaces the framing used on upgraded connections
func WithFrameCodec(codec FrameCodec) Option {
	return func(s *settings) { s.codec = codec }
}

// WithAbortOnWrongMethod makes a non-GET handshake panic instead of being
// answered with 400. This reproduces older behavior and should only be
// enabled for compatibility.
func WithAbortOnWrongMethod(abort bool) Option {
	return func(s *settings) { s.abortOnWrongMethod = abort }
}

// WithCompletion registers fn to be called with the outcome of every
// background session
func WithCompletion(fn func(error)) Option {
	return func(s *settings) { s.onDone = fn }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// Middleware performs the opening handshake and hands upgraded connections
// to a typed handler. It is immutable and shared by every request of a route.
type Middleware[C, S any] struct {
	converter StreamConverter[S]
	create    func(Origin) C
	settings
}

// NewMiddleware creates the upgrade middleware. create builds the request
// content for every valid handshake; converter turns upgraded connections
// into the handler's stream type.
func NewMiddleware[C, S any](converter StreamConverter[S], create func(Origin) C, opts ...Option) *Middleware[C, S] {
	s := settings{codec: NewServerStream}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = infrastructure.GetLogger()
	}
	s.logger = s.logger.With(slog.String("component", "websocket.upgrade"))

	return &Middleware[C, S]{
		converter: converter,
		create:    create,
		settings:  s,
	}
}

// Respond validates the handshake, runs next with the typed request and
// answers 101. The upgraded session runs detached from ctx's cancellation.
// Invalid handshakes are answered 400 with an empty body.
func (m *Middleware[C, S]) Respond(ctx context.Context, req *routing.Request, next func(context.Context, Request[C, S]) Response) *routing.Response {
	neg, err := Negotiate(req)
	if err != nil {
		m.metrics.RecordHandshake(rejectReason(err))
		if errors.Is(err, ErrWrongHTTPMethod) && m.abortOnWrongMethod {
			panic("incorrect method for WebSocket, should be GET")
		}
		if errors.Is(err, ErrUpgradeUnavailable) {
			m.logger.ErrorContext(ctx, "handshake over a transport without upgrade support",
				slog.String("path", req.Path))
			return routing.EmptyResponse(http.StatusInternalServerError)
		}
		m.logger.DebugContext(ctx, "websocket handshake rejected",
			slog.String("path", req.Path),
			slog.String("remote_addr", req.RemoteAddr),
			slog.String("error", err.Error()))
		return routing.EmptyResponse(http.StatusBadRequest)
	}

	query, _ := url.ParseQuery(req.RawQuery)
	content := m.create(Origin{
		Method:     req.Method,
		Path:       req.Path,
		RawQuery:   req.RawQuery,
		Query:      query,
		Header:     req.Header,
		RemoteAddr: req.RemoteAddr,
		Extensions: req.Extensions,
	})

	resp := next(ctx, Request[C, S]{
		Content: content,
		Upgrade: Upgrade[S]{converter: m.converter, extensions: req.Extensions},
	})

	if resp.reject != nil {
		m.metrics.RecordHandshake("rejected_by_handler")
		return resp.reject
	}
	if resp.upgraded == nil {
		m.logger.ErrorContext(ctx, "websocket handler returned neither an upgrade nor a rejection",
			slog.String("path", req.Path))
		return routing.EmptyResponse(http.StatusInternalServerError)
	}

	m.metrics.RecordHandshake("")
	neg.upgrade.Claim()
	go m.serve(context.WithoutCancel(ctx), neg, req.RemoteAddr, resp.upgraded)

	return neg.SwitchingProtocols()
}

// serve waits for the takeover and runs the upgraded handler. Nothing here
// can reach the HTTP exchange any more, so failures are only logged.
func (m *Middleware[C, S]) serve(ctx context.Context, neg *Negotiation, remoteAddr string, upgraded func(context.Context, Conn) error) {
	m.metrics.SessionStarted()
	err := m.runSession(ctx, neg, upgraded)
	m.metrics.SessionFinished(err)

	if err != nil {
		m.logger.WarnContext(ctx, "websocket session ended with error",
			slog.String("remote_addr", remoteAddr),
			slog.String("error", err.Error()))
	} else {
		m.logger.DebugContext(ctx, "websocket session ended",
			slog.String("remote_addr", remoteAddr))
	}

	if m.onDone != nil {
		m.onDone(err)
	}
}

func (m *Middleware[C, S]) runSession(ctx context.Context, neg *Negotiation, upgraded func(context.Context, Conn) error) (err error) {
	netConn, rw, err := neg.upgrade.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for upgrade: %w", err)
	}

	conn := m.codec(netConn, rw, m.config)
	if conn == nil {
		_ = netConn.Close()
		return errors.New("frame codec returned no connection")
	}
	defer conn.Close()

	defer func() {
		if rvr := recover(); rvr != nil {
			m.logger.ErrorContext(ctx, "panic in upgraded handler",
				slog.Any("panic", rvr),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("upgraded handler panicked: %v", rvr)
		}
	}()

	if err := upgraded(ctx, conn); err != nil {
		return fmt.Errorf("upgraded handler: %w", err)
	}
	return nil
}

// Handle composes the middleware with a typed handler into a route handler
func Handle[C, S any](m *Middleware[C, S], h func(context.Context, Request[C, S]) Response) routing.Handler {
	return routing.Chain[*routing.Request, *routing.Response](m, h)
}
