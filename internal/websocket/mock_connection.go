package websocket

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrMockClosed is returned by a closed MockStream
var ErrMockClosed = errors.New("mock stream closed")

// MockStream is an in-memory Conn for testing upgraded handlers. Queued read
// messages are returned in order; once they run out Receive blocks until
// more are queued, the stream is closed or ctx is done.
type MockStream struct {
	mu sync.Mutex

	// Send behavior
	SendFunc func(msg Message) error
	Sent     []Message

	// Receive behavior
	reads  []MockRead
	notify chan struct{}

	// Close behavior
	CloseFunc func() error
	Closed    bool
	closed    chan struct{}

	RemoteAddress string
}

// MockRead is one queued result of Receive
type MockRead struct {
	Msg Message
	Err error
}

// NewMockStream creates a new mock stream
func NewMockStream() *MockStream {
	return &MockStream{
		notify:        make(chan struct{}, 1),
		closed:        make(chan struct{}),
		RemoteAddress: "127.0.0.1:8080",
	}
}

// Send implements Conn.Send
func (m *MockStream) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return ErrMockClosed
	}
	if m.SendFunc != nil {
		if err := m.SendFunc(msg); err != nil {
			return err
		}
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Receive implements Conn.Receive
func (m *MockStream) Receive(ctx context.Context) (Message, error) {
	for {
		m.mu.Lock()
		if len(m.reads) > 0 {
			r := m.reads[0]
			m.reads = m.reads[1:]
			m.mu.Unlock()
			return r.Msg, r.Err
		}
		closed := m.Closed
		m.mu.Unlock()

		if closed {
			return Message{}, io.EOF
		}

		select {
		case <-m.notify:
		case <-m.closed:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close implements Conn.Close
func (m *MockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CloseFunc != nil {
		if err := m.CloseFunc(); err != nil {
			return err
		}
	}
	if !m.Closed {
		m.Closed = true
		close(m.closed)
	}
	return nil
}

// RemoteAddr implements Conn.RemoteAddr
func (m *MockStream) RemoteAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RemoteAddress
}

// Helper methods for testing

// AddRead queues a message to be returned by Receive
func (m *MockStream) AddRead(msg Message) {
	m.addRead(MockRead{Msg: msg})
}

// AddReadError queues an error to be returned by Receive
func (m *MockStream) AddReadError(err error) {
	m.addRead(MockRead{Err: err})
}

func (m *MockStream) addRead(r MockRead) {
	m.mu.Lock()
	m.reads = append(m.reads, r)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// SentMessages returns all messages sent on the stream
func (m *MockStream) SentMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Message, len(m.Sent))
	copy(result, m.Sent)
	return result
}

// IsClosed reports whether Close was called
func (m *MockStream) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}
