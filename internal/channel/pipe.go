package channel

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrPipeClosed is returned by Send on a closed pipe
var ErrPipeClosed = errors.New("pipe closed")

// Pipe is an unbuffered in-memory transport. It is both a Sink and a
// Source: each Send blocks until a Receive takes the message.
type Pipe[G any] struct {
	msgs chan G
	done chan struct{}
	once sync.Once
}

// NewPipe creates an open pipe
func NewPipe[G any]() *Pipe[G] {
	return &Pipe[G]{
		msgs: make(chan G),
		done: make(chan struct{}),
	}
}

// Send hands msg to the next Receive
func (p *Pipe[G]) Send(ctx context.Context, msg G) error {
	select {
	case <-p.done:
		return ErrPipeClosed
	default:
	}

	select {
	case p.msgs <- msg:
		return nil
	case <-p.done:
		return ErrPipeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for the next message. It returns io.EOF once the pipe is closed.
func (p *Pipe[G]) Receive(ctx context.Context) (G, error) {
	var zero G
	select {
	case msg := <-p.msgs:
		return msg, nil
	case <-p.done:
		return zero, io.EOF
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close ends the pipe. It is safe to call more than once.
func (p *Pipe[G]) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
