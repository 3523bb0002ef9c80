package websocket

import (
	"bufio"
	"context"
	"net"
	"time"

	"switchboard/internal/routing"
)

// Conn is a framed WebSocket connection. It is both a channel.Sink and a
// channel.Source of Message values.
type Conn interface {
	// Send writes one complete message. It blocks while the peer applies backpressure.
	Send(ctx context.Context, msg Message) error

	// Receive reads the next data message, answering control frames on the way.
	// It returns io.EOF after the peer closed the connection cleanly.
	Receive(ctx context.Context) (Message, error)

	// Close sends a close frame and releases the connection
	Close() error

	// RemoteAddr returns the remote network address
	RemoteAddr() string
}

// FrameCodec wraps a raw connection taken over from the HTTP transport in
// server-role WebSocket framing. rw may be nil; when set, its reader holds
// bytes the transport already buffered from conn.
type FrameCodec func(conn net.Conn, rw *bufio.ReadWriter, cfg Config) Conn

// StreamConverter turns a framed connection into the typed value handed to
// an upgraded handler, such as a typed channel. ext is the extension set of
// the request that carried the handshake.
type StreamConverter[S any] interface {
	ConvertStream(ctx context.Context, conn Conn, ext *routing.Extensions) (S, error)
}

// Config tunes the framing of upgraded connections. Zero values mean no limit.
type Config struct {
	// MaxFrameSize bounds the payload of a single frame
	MaxFrameSize int64

	// MaxMessageSize bounds a reassembled message
	MaxMessageSize int64

	// WriteTimeout bounds each Send
	WriteTimeout time.Duration
}

// ConnConverter hands the framed connection itself to the handler
type ConnConverter struct{}

// ConvertStream returns conn unchanged
func (ConnConverter) ConvertStream(_ context.Context, conn Conn, _ *routing.Extensions) (Conn, error) {
	return conn, nil
}
