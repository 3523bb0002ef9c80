package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"switchboard/internal/infrastructure"
)

// Hub maintains the set of joined clients and broadcasts messages to them.
// Each client has a bounded outbound queue; a client whose queue is full is
// dropped rather than slowing down the others.
type Hub[T any] struct {
	// Joined clients
	clients map[*Client[T]]struct{}

	// Messages to fan out
	broadcast chan T

	register   chan *Client[T]
	unregister chan *Client[T]

	mu      sync.RWMutex
	logger  *slog.Logger
	otel    *HubMetrics
	quit    chan struct{}
	done    chan struct{}
	running bool
	stopped bool

	totalJoined  int64
	messagesSent int64
	dropped      int64
}

// NewHub creates a new Hub
func NewHub[T any](logger *slog.Logger) *Hub[T] {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "websocket.hub"))

	otelMetrics, err := NewHubMetrics()
	if err != nil {
		logger.Warn("hub metrics unavailable", slog.String("error", err.Error()))
	}

	return &Hub[T]{
		clients:    make(map[*Client[T]]struct{}),
		broadcast:  make(chan T),
		register:   make(chan *Client[T]),
		unregister: make(chan *Client[T]),
		logger:     logger,
		otel:       otelMetrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start starts the hub loop. Calling it again is a no-op. A hub is single
// use: Start after Stop does nothing.
func (h *Hub[T]) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running || h.stopped {
		return
	}
	h.running = true
	go h.run()
}

// Stop stops the hub and closes every client's queue. Calling it again is a no-op.
func (h *Hub[T]) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.stopped = true
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

func (h *Hub[T]) run() {
	defer close(h.done)
	ctx := context.Background()

	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
				h.otel.RecordLeave(ctx, time.Since(c.joinedAt), "stopped", len(h.clients))
			}
			h.mu.Unlock()
			h.logger.Info("hub shutting down")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.totalJoined++
			count := len(h.clients)
			h.mu.Unlock()

			h.otel.RecordJoin(ctx, count)
			h.logger.Info("client joined",
				slog.String("client_id", c.id),
				slog.String("remote_addr", c.remoteAddr),
				slog.Int("total_clients", count))

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if !ok {
				// already dropped by a broadcast
				continue
			}
			h.otel.RecordLeave(ctx, time.Since(c.joinedAt), "left", count)

			h.logger.Info("client left",
				slog.String("client_id", c.id),
				slog.Int("total_clients", count),
				slog.Duration("connection_duration", time.Since(c.joinedAt)))

		case msg := <-h.broadcast:
			h.fanOut(ctx, msg)
		}
	}
}

func (h *Hub[T]) fanOut(ctx context.Context, msg T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered, failed := 0, 0
	for c := range h.clients {
		select {
		case c.send <- msg:
			delivered++
			h.messagesSent++
		default:
			failed++
			h.dropped++
			delete(h.clients, c)
			close(c.send)
			h.otel.RecordLeave(ctx, time.Since(c.joinedAt), "dropped", len(h.clients))
			h.logger.Warn("client queue full, disconnecting",
				slog.String("client_id", c.id))
		}
	}

	h.otel.RecordBroadcast(ctx, delivered, failed)
	h.logger.Debug("broadcast delivered",
		slog.Int("client_count", len(h.clients)),
		slog.Int("fail_count", failed))
}

// Join registers a client writing to sink. The caller runs the client's
// WritePump and calls Leave when the peer goes away.
func (h *Hub[T]) Join(ctx context.Context, c *Client[T]) error {
	select {
	case h.register <- c:
		return nil
	case <-h.quit:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave unregisters a client. It is safe to call for a client that was
// already dropped.
func (h *Hub[T]) Leave(c *Client[T]) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Broadcast queues msg for every joined client
func (h *Hub[T]) Broadcast(ctx context.Context, msg T) error {
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.quit:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns the number of joined clients
func (h *Hub[T]) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters for logging
func (h *Hub[T]) Stats() map[string]int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]int64{
		"active_clients": int64(len(h.clients)),
		"total_joined":   h.totalJoined,
		"messages_sent":  h.messagesSent,
		"dropped":        h.dropped,
	}
}
