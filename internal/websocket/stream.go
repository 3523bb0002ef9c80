package websocket

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// closeWait bounds writing the close frame on Close
const closeWait = time.Second

// ErrMessageTooLarge is returned by Receive when a message exceeds Config.MaxMessageSize
var ErrMessageTooLarge = errors.New("websocket: message too large")

// MessageType is the data frame opcode of a message
type MessageType int

// Message types, numbered like their opcodes
const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

// Message is one complete WebSocket data message
type Message struct {
	Type    MessageType
	Payload []byte
}

// NewTextMessage creates a text message
func NewTextMessage(text string) Message {
	return Message{Type: TextMessage, Payload: []byte(text)}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Payload: data}
}

func (t MessageType) opCode() ws.OpCode {
	if t == BinaryMessage {
		return ws.OpBinary
	}
	return ws.OpText
}

// Stream is a server-side WebSocket connection over a raw network connection
type Stream struct {
	conn    net.Conn
	cfg     Config
	reader  *wsutil.Reader
	control wsutil.FrameHandlerFunc

	// rmu serializes readers, wmu serializes frames written to conn
	rmu sync.Mutex
	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewServerStream frames conn in the server role. Bytes already buffered in
// rw are consumed before reading from conn.
func NewServerStream(conn net.Conn, rw *bufio.ReadWriter, cfg Config) Conn {
	var src io.Reader = conn
	if rw != nil && rw.Reader != nil {
		src = rw.Reader
	}

	s := &Stream{conn: conn, cfg: cfg}
	s.control = wsutil.ControlFrameHandler(&lockedWriter{mu: &s.wmu, w: conn}, ws.StateServerSide)
	s.reader = &wsutil.Reader{
		Source:         src,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		MaxFrameSize:   cfg.MaxFrameSize,
		OnIntermediate: s.control,
	}
	return s
}

// Send writes msg as a single unfragmented frame
func (s *Stream) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.cfg.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	if err := ws.WriteFrame(s.conn, ws.NewFrame(msg.Type.opCode(), true, msg.Payload)); err != nil {
		return fmt.Errorf("websocket: write frame: %w", err)
	}
	return nil
}

// Receive reads the next data message. Pings are answered and a close frame
// is echoed before Receive returns io.EOF. Cancelling ctx while waiting
// closes the stream.
func (s *Stream) Receive(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.rmu.Lock()
	defer s.rmu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = s.Close()
	})
	defer stop()

	for {
		hdr, err := s.reader.NextFrame()
		if err != nil {
			return Message{}, s.readError(ctx, err)
		}

		if hdr.OpCode.IsControl() {
			if err := s.control(hdr, s.reader); err != nil {
				return Message{}, s.readError(ctx, err)
			}
			continue
		}

		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := s.reader.Discard(); err != nil {
				return Message{}, s.readError(ctx, err)
			}
			continue
		}

		var src io.Reader = s.reader
		if s.cfg.MaxMessageSize > 0 {
			src = io.LimitReader(s.reader, s.cfg.MaxMessageSize+1)
		}
		payload, err := io.ReadAll(src)
		if err != nil {
			return Message{}, s.readError(ctx, err)
		}
		if s.cfg.MaxMessageSize > 0 && int64(len(payload)) > s.cfg.MaxMessageSize {
			s.closeWith(ws.StatusMessageTooBig)
			return Message{}, ErrMessageTooLarge
		}

		msgType := TextMessage
		if hdr.OpCode == ws.OpBinary {
			msgType = BinaryMessage
		}
		return Message{Type: msgType, Payload: payload}, nil
	}
}

// Close sends a normal closure frame and closes the connection
func (s *Stream) Close() error {
	s.closeWith(ws.StatusNormalClosure)
	return s.closeErr
}

// RemoteAddr returns the peer's address
func (s *Stream) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (s *Stream) closeWith(code ws.StatusCode) {
	s.closeOnce.Do(func() {
		// unblocks a Send stuck on backpressure before taking the write lock
		_ = s.conn.SetWriteDeadline(time.Now().Add(closeWait))
		s.wmu.Lock()
		_ = ws.WriteFrame(s.conn, ws.NewCloseFrame(ws.NewCloseFrameBody(code, "")))
		s.wmu.Unlock()
		s.closeErr = s.conn.Close()
	})
}

func (s *Stream) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		// the control handler already echoed the peer's close frame
		s.closeOnce.Do(func() {
			s.closeErr = s.conn.Close()
		})
		return io.EOF
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return io.EOF
	}
	return fmt.Errorf("websocket: read: %w", err)
}

// lockedWriter lets the control frame handler share the connection with
// Send. The handler writes each control frame with a single Write call.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
