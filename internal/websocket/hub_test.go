package websocket

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/shared/testutil"
)

// recordingSink collects messages sent to it
type recordingSink struct {
	mu   sync.Mutex
	msgs []string
	err  error
	gate chan struct{}
}

func (s *recordingSink) Send(ctx context.Context, msg string) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

// TestHubStartStop tests starting and stopping the hub
func TestHubStartStop(t *testing.T) {
	hub := NewHub[string](discardLogger)

	hub.Start()
	hub.Start()
	assert.True(t, hub.running)

	hub.Stop()
	assert.False(t, hub.running)
	hub.Stop()

	// a stopped hub cannot be restarted
	hub.Start()
	assert.False(t, hub.running)
	hub.Stop()

	err := hub.Broadcast(context.Background(), "after stop")
	assert.ErrorIs(t, err, ErrHubStopped)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub[string](discardLogger)
	hub.Start()
	defer hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sinks := []*recordingSink{{}, {}, {}}
	var wg sync.WaitGroup
	clients := make([]*Client[string], len(sinks))
	for i, sink := range sinks {
		clients[i] = NewClient[string](sink, "192.0.2.1:1000", discardLogger)
		require.NoError(t, hub.Join(ctx, clients[i]))
		wg.Add(1)
		go func(c *Client[string]) {
			defer wg.Done()
			_ = c.WritePump(ctx)
		}(clients[i])
	}

	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Broadcast(ctx, "one"))
	require.NoError(t, hub.Broadcast(ctx, "two"))

	for _, sink := range sinks {
		require.Eventually(t, func() bool { return len(sink.received()) == 2 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"one", "two"}, sink.received())
	}

	for _, c := range clients {
		hub.Leave(c)
	}
	// a left client's queue is closed, which ends its pump
	wg.Wait()
	assert.Equal(t, 0, hub.ClientCount())

	stats := hub.Stats()
	assert.Equal(t, int64(3), stats["total_joined"])
	assert.Equal(t, int64(6), stats["messages_sent"])
}

func TestHubDropsSlowClient(t *testing.T) {
	logs := testutil.NewBufferedSlogHandler(nil)
	hub := NewHub[string](slog.New(logs))
	hub.Start()
	defer hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// no pump runs for this client, so its queue fills up
	slow := NewClient[string](&recordingSink{}, "192.0.2.2:1000", discardLogger)
	require.NoError(t, hub.Join(ctx, slow))

	for i := 0; i <= clientQueueSize; i++ {
		require.NoError(t, hub.Broadcast(ctx, "msg"))
	}

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), hub.Stats()["dropped"])
	testutil.AssertLogContains(t, logs, slog.LevelWarn, "client queue full")
	testutil.AssertLogAttr(t, logs, "client_id", slow.ID())

	// leaving after being dropped is harmless
	hub.Leave(slow)

	drained := 0
	for range slow.send {
		drained++
	}
	assert.Equal(t, clientQueueSize, drained)
}

func TestHubDroppedClientPumpEnds(t *testing.T) {
	hub := NewHub[string](discardLogger)
	hub.Start()
	defer hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// the pump holds at most one message while blocked on the sink, so the
	// queue overflows
	sink := &recordingSink{gate: make(chan struct{})}
	c := NewClient[string](sink, "192.0.2.5:1000", discardLogger)
	require.NoError(t, hub.Join(ctx, c))

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- c.WritePump(ctx) }()

	for i := 0; i <= clientQueueSize+1; i++ {
		require.NoError(t, hub.Broadcast(ctx, "msg"))
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	close(sink.gate)
	select {
	case err := <-pumpErr:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("write pump of a dropped client did not stop")
	}
	assert.NotEmpty(t, sink.received())
}

func TestHubStopClosesQueues(t *testing.T) {
	hub := NewHub[string](discardLogger)
	hub.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient[string](&recordingSink{}, "192.0.2.3:1000", discardLogger)
	require.NoError(t, hub.Join(ctx, c))

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- c.WritePump(ctx) }()

	hub.Stop()

	select {
	case err := <-pumpErr:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("write pump did not stop")
	}
	assert.ErrorIs(t, hub.Join(ctx, NewClient[string](&recordingSink{}, "", discardLogger)), ErrHubStopped)
}

func TestClientWritePumpError(t *testing.T) {
	sink := &recordingSink{err: assert.AnError}
	c := NewClient[string](sink, "192.0.2.4:1000", discardLogger)
	assert.NotEmpty(t, c.ID())

	c.send <- "fails"
	err := c.WritePump(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestClientWritePumpContext(t *testing.T) {
	c := NewClient[string](&recordingSink{}, "", discardLogger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.WritePump(ctx), context.Canceled)
}
