package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	apierrors "switchboard/internal/errors"
	"switchboard/internal/routing"
)

// ErrNotUpgraded resolves the upgrade future of a request whose response
// was not 101 Switching Protocols
var ErrNotUpgraded = errors.New("transport: response did not switch protocols")

// ErrUpgradeUnclaimed is reported when a handler answers 101 without a
// session claiming the connection
var ErrUpgradeUnclaimed = errors.New("transport: 101 response without a claimed upgrade")

// upgradeSlot is the per-request upgrade future. It is resolved exactly
// once, after the response has been written.
type upgradeSlot struct {
	done    chan struct{}
	once    sync.Once
	claimed atomic.Bool
	conn net.Conn
	rw   *bufio.ReadWriter
	err  error
}

func newUpgradeSlot() *upgradeSlot {
	return &upgradeSlot{done: make(chan struct{})}
}

func (s *upgradeSlot) resolve(conn net.Conn, rw *bufio.ReadWriter, err error) {
	s.once.Do(func() {
		s.conn, s.rw, s.err = conn, rw, err
		close(s.done)
	})
}

// Claim implements routing.OnUpgrade
func (s *upgradeSlot) Claim() {
	s.claimed.Store(true)
}

// Wait implements routing.OnUpgrade
func (s *upgradeSlot) Wait(ctx context.Context) (net.Conn, *bufio.ReadWriter, error) {
	select {
	case <-s.done:
		return s.conn, s.rw, s.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Adapter serves a routing.Router over net/http
type Adapter struct {
	router     *routing.Router
	extensions *routing.Extensions
	errHandler *apierrors.ErrorHandler
	logger     *slog.Logger
}

// NewAdapter creates an adapter that hands ext to every request. Failed
// connection takeovers are answered through errHandler; a nil errHandler
// gets a default one.
func NewAdapter(router *routing.Router, ext *routing.Extensions, errHandler *apierrors.ErrorHandler, logger *slog.Logger) *Adapter {
	if ext == nil {
		ext = routing.NewExtensions()
	}
	if errHandler == nil {
		errHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &Adapter{
		router:     router,
		extensions: ext,
		errHandler: errHandler,
		logger:     logger.With(slog.String("component", "transport.adapter")),
	}
}

// ServeHTTP dispatches r through the router and writes the response. A 101
// response takes over the connection and hands it to the upgrade future,
// provided the future was claimed; otherwise the request fails with 500.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slot := newUpgradeSlot()
	req := &routing.Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		ProtoMajor: r.ProtoMajor,
		ProtoMinor: r.ProtoMinor,
		Header:     r.Header,
		Body:       r.Body,
		RemoteAddr: r.RemoteAddr,
		Extensions: a.extensions,
	}
	// only HTTP/1.x connections can be hijacked
	if r.ProtoMajor == 1 {
		req.Upgrade = slot
	}

	resp := a.router.Process(r.Context(), req)

	if resp.StatusCode == http.StatusSwitchingProtocols {
		if !slot.claimed.Load() {
			slot.resolve(nil, nil, ErrUpgradeUnclaimed)
			a.errHandler.HandleError(w, r, ErrUpgradeUnclaimed)
			return
		}
		if err := a.switchProtocols(w, r, resp, slot); err != nil {
			a.logger.ErrorContext(r.Context(), "connection takeover failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))
		}
		return
	}

	slot.resolve(nil, nil, ErrNotUpgraded)
	writeResponse(w, resp)
}

// switchProtocols hijacks the connection, writes the 101 head itself and
// resolves the future with the raw connection
func (a *Adapter) switchProtocols(w http.ResponseWriter, r *http.Request, resp *routing.Response, slot *upgradeSlot) error {
	conn, brw, err := http.NewResponseController(w).Hijack()
	if err != nil {
		err = fmt.Errorf("hijack: %w", err)
		slot.resolve(nil, nil, err)
		a.errHandler.HandleError(w, r, err)
		return err
	}

	// the server's read and write deadlines would otherwise outlive the
	// request and cut the session short
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		slot.resolve(nil, nil, err)
		return fmt.Errorf("clear deadlines: %w", err)
	}

	if err := writeSwitchingProtocols(brw.Writer, resp); err != nil {
		conn.Close()
		slot.resolve(nil, nil, err)
		return fmt.Errorf("write 101 response: %w", err)
	}

	slot.resolve(conn, brw, nil)
	return nil
}

func writeSwitchingProtocols(bw *bufio.Writer, resp *routing.Response) error {
	if _, err := bw.WriteString("HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	if err := resp.Header.Write(bw); err != nil {
		return err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func writeResponse(w http.ResponseWriter, resp *routing.Response) {
	h := w.Header()
	for k, vs := range resp.Header {
		h[k] = vs
	}
	if len(resp.Body) == 0 {
		w.WriteHeader(resp.StatusCode)
		return
	}

	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
