package api

import (
	"context"
	"encoding/json"

	"switchboard/internal/channel"
	"switchboard/internal/routing"
	"switchboard/internal/websocket"
)

// Channel is the typed duplex handed to an upgraded WebSocket handler.
// Out values are sent to the peer, In values are received from it.
type Channel[Out, In any] struct {
	Sender     *channel.Sender[Out, websocket.Message]
	Receiver   *channel.Receiver[In, websocket.Message]
	Extensions *routing.Extensions
	RemoteAddr string

	conn websocket.Conn
}

// Close closes the underlying connection
func (c *Channel[Out, In]) Close() error {
	return c.conn.Close()
}

// JSONChannelConverter turns an upgraded connection into a Channel that
// exchanges JSON text messages
type JSONChannelConverter[Out, In any] struct {
	JSON JSONConverter
}

// ConvertStream wraps conn in JSON serialization. The channel carries the
// extensions of the upgraded request.
func (c JSONChannelConverter[Out, In]) ConvertStream(ctx context.Context, conn websocket.Conn, ext *routing.Extensions) (*Channel[Out, In], error) {
	serialize := func(ctx context.Context, v Out) (websocket.Message, error) {
		data, err := c.JSON.Marshal(v)
		if err != nil {
			return websocket.Message{}, err
		}
		return websocket.Message{Type: websocket.TextMessage, Payload: data}, nil
	}

	deserialize := func(ctx context.Context, msg websocket.Message) (In, error) {
		var v In
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			var zero In
			return zero, err
		}
		return v, nil
	}

	return &Channel[Out, In]{
		Sender:     channel.NewSender[Out, websocket.Message](conn, serialize),
		Receiver:   channel.NewReceiver[In, websocket.Message](conn, deserialize),
		Extensions: ext,
		RemoteAddr: conn.RemoteAddr(),
		conn:       conn,
	}, nil
}
