package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"switchboard/internal/channel"
	"switchboard/internal/infrastructure"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Outbound messages queued per client before it is dropped
	clientQueueSize = 256
)

var (
	// ErrHubStopped is returned when joining or broadcasting to a stopped hub
	ErrHubStopped = errors.New("websocket: hub stopped")

	// ErrQueueClosed is returned by WritePump once the hub has closed the
	// client's queue: the client left, was dropped, or the hub stopped
	ErrQueueClosed = errors.New("websocket: client queue closed")
)

// Client is a middleman between a hub and one peer's typed sink
type Client[T any] struct {
	sink channel.Sink[T]

	// Buffered channel of outbound messages
	send chan T

	id         string
	remoteAddr string
	joinedAt   time.Time
	logger     *slog.Logger
}

// NewClient creates a new Client writing to sink
func NewClient[T any](sink channel.Sink[T], remoteAddr string, logger *slog.Logger) *Client[T] {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	id := uuid.New().String()
	return &Client[T]{
		sink:       sink,
		send:       make(chan T, clientQueueSize),
		id:         id,
		remoteAddr: remoteAddr,
		joinedAt:   time.Now(),
		logger: logger.With(
			slog.String("component", "websocket.client"),
			slog.String("client_id", id),
		),
	}
}

// ID returns the client's identifier
func (c *Client[T]) ID() string {
	return c.id
}

// WritePump pumps messages from the hub to the sink. It returns
// ErrQueueClosed when the hub closes the queue, so the caller can tear the
// peer's connection down.
func (c *Client[T]) WritePump(ctx context.Context) error {
	var sent int64
	defer func() {
		c.logger.DebugContext(ctx, "write pump stopped", slog.Int64("messages_sent", sent))
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.send:
			if !ok {
				return ErrQueueClosed
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.sink.Send(writeCtx, msg)
			cancel()
			if err != nil {
				return fmt.Errorf("write to client %s: %w", c.id, err)
			}
			sent++
		}
	}
}
