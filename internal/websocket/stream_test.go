package websocket

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeStream(t *testing.T, cfg Config) (Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewServerStream(server, nil, cfg), client
}

func TestStreamReceive(t *testing.T) {
	tests := []struct {
		name  string
		write func(conn net.Conn) error
		want  Message
	}{
		{
			name:  "text",
			write: func(conn net.Conn) error { return wsutil.WriteClientText(conn, []byte("hello")) },
			want:  NewTextMessage("hello"),
		},
		{
			name:  "binary",
			write: func(conn net.Conn) error { return wsutil.WriteClientBinary(conn, []byte{0, 1, 2}) },
			want:  NewBinaryMessage([]byte{0, 1, 2}),
		},
		{
			name: "fragmented text",
			write: func(conn net.Conn) error {
				if err := ws.WriteFrame(conn, ws.MaskFrameInPlace(ws.NewFrame(ws.OpText, false, []byte("hel")))); err != nil {
					return err
				}
				return ws.WriteFrame(conn, ws.MaskFrameInPlace(ws.NewFrame(ws.OpContinuation, true, []byte("lo"))))
			},
			want: NewTextMessage("hello"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, client := newPipeStream(t, Config{})
			errCh := make(chan error, 1)
			go func() { errCh <- tt.write(client) }()

			msg, err := stream.Receive(context.Background())
			require.NoError(t, err)
			require.NoError(t, <-errCh)
			assert.Equal(t, tt.want, msg)
		})
	}
}

func TestStreamSend(t *testing.T) {
	stream, client := newPipeStream(t, Config{WriteTimeout: time.Second})

	errCh := make(chan error, 1)
	go func() { errCh <- stream.Send(context.Background(), NewTextMessage("hi")) }()

	payload, op, err := wsutil.ReadServerData(client)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, ws.OpText, op)
	assert.Equal(t, "hi", string(payload))
}

func TestStreamAnswersPing(t *testing.T) {
	stream, client := newPipeStream(t, Config{})

	type result struct {
		pong ws.Frame
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		if err := ws.WriteFrame(client, ws.MaskFrameInPlace(ws.NewPingFrame([]byte("are you there")))); err != nil {
			resCh <- result{err: err}
			return
		}
		pong, err := ws.ReadFrame(client)
		if err != nil {
			resCh <- result{err: err}
			return
		}
		resCh <- result{pong: pong, err: wsutil.WriteClientText(client, []byte("after ping"))}
	}()

	msg, err := stream.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NewTextMessage("after ping"), msg)

	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, ws.OpPong, res.pong.Header.OpCode)
	assert.Equal(t, "are you there", string(res.pong.Payload))
}

func TestStreamPeerClose(t *testing.T) {
	stream, client := newPipeStream(t, Config{})

	echoCh := make(chan ws.Frame, 1)
	go func() {
		_ = ws.WriteFrame(client, ws.MaskFrameInPlace(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "bye"))))
		if f, err := ws.ReadFrame(client); err == nil {
			echoCh <- f
		}
		close(echoCh)
	}()

	_, err := stream.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	echo, ok := <-echoCh
	require.True(t, ok, "close frame must be echoed")
	assert.Equal(t, ws.OpClose, echo.Header.OpCode)

	// the stream stays closed
	_, err = stream.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamMessageTooLarge(t *testing.T) {
	stream, client := newPipeStream(t, Config{MaxMessageSize: 4})

	// the oversized payload is never read to the end, so write and read
	// on separate goroutines
	go func() { _ = wsutil.WriteClientText(client, []byte("too long")) }()

	closeCh := make(chan ws.Frame, 1)
	go func() {
		if f, err := ws.ReadFrame(client); err == nil {
			closeCh <- f
		}
		close(closeCh)
	}()

	_, err := stream.Receive(context.Background())
	assert.ErrorIs(t, err, ErrMessageTooLarge)

	f, ok := <-closeCh
	require.True(t, ok)
	require.Equal(t, ws.OpClose, f.Header.OpCode)
	code, _ := ws.ParseCloseFrameData(f.Payload)
	assert.Equal(t, ws.StatusMessageTooBig, code)
}

func TestStreamReceiveCancel(t *testing.T) {
	stream, client := newPipeStream(t, Config{})
	go func() { _, _ = io.Copy(io.Discard, client) }()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Receive(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Receive did not return after cancel")
	}

	err := stream.Send(context.Background(), NewTextMessage("late"))
	assert.Error(t, err)
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	stream, client := newPipeStream(t, Config{})
	go func() { _, _ = io.Copy(io.Discard, client) }()

	require.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
	assert.Equal(t, "pipe", stream.RemoteAddr())
}
