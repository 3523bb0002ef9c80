// Package channel provides typed send and receive halves over a duplex
// message stream. Conversion between the stream's generic messages and
// application types is supplied by the caller, so the same halves serve
// JSON over WebSocket, in-memory pipes and anything else that moves
// discrete messages in order.
//
// Message order on both halves is exactly the transport's order. Neither
// half buffers: a Send blocks for as long as the sink does, and every
// Receive pulls one message from the source.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"
)

// ErrClosed marks the end of a receive sequence. Errors returned after the
// transport terminated wrap it.
var ErrClosed = errors.New("channel closed")

// Sink is the sending side of a transport
type Sink[G any] interface {
	Send(ctx context.Context, msg G) error
}

// Source is the receiving side of a transport
type Source[G any] interface {
	Receive(ctx context.Context) (G, error)
}

// SerializeFunc converts a typed value into a transport message
type SerializeFunc[T, G any] func(ctx context.Context, v T) (G, error)

// DeserializeFunc converts a transport message into a typed value
type DeserializeFunc[G, T any] func(ctx context.Context, msg G) (T, error)

// ConvertError reports a failed serialization or deserialization. It never
// terminates the channel.
type ConvertError struct {
	Op  string
	Err error
}

func (e *ConvertError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ConvertError) Unwrap() error {
	return e.Err
}

// Sender serializes typed values and forwards them to a sink
type Sender[T, G any] struct {
	sink      Sink[G]
	serialize SerializeFunc[T, G]
}

// NewSender creates a Sender
func NewSender[T, G any](sink Sink[G], serialize SerializeFunc[T, G]) *Sender[T, G] {
	return &Sender[T, G]{sink: sink, serialize: serialize}
}

// Send serializes v and forwards it. It fails with a *ConvertError when
// serialization fails, or with the sink's error when the transport rejects
// the message.
func (s *Sender[T, G]) Send(ctx context.Context, v T) error {
	msg, err := s.serialize(ctx, v)
	if err != nil {
		return &ConvertError{Op: "serialize", Err: err}
	}
	return s.sink.Send(ctx, msg)
}

// Receiver pulls transport messages and deserializes them
type Receiver[T, G any] struct {
	source      Source[G]
	deserialize DeserializeFunc[G, T]

	mu  sync.Mutex
	err error
}

// NewReceiver creates a Receiver
func NewReceiver[T, G any](source Source[G], deserialize DeserializeFunc[G, T]) *Receiver[T, G] {
	return &Receiver[T, G]{source: source, deserialize: deserialize}
}

// Receive waits for the next message. A message that fails to deserialize
// yields a *ConvertError and leaves the receiver open. A transport error or
// end of stream is terminal: it wraps ErrClosed and every later call returns
// it again without touching the source.
func (r *Receiver[T, G]) Receive(ctx context.Context) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.err != nil {
		return zero, r.err
	}

	msg, err := r.source.Receive(ctx)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return zero, err
		}
		r.err = closedError(err)
		return zero, r.err
	}

	v, err := r.deserialize(ctx, msg)
	if err != nil {
		return zero, &ConvertError{Op: "deserialize", Err: err}
	}
	return v, nil
}

// All returns the remaining messages as a lazy sequence. Deserialization
// failures are yielded as errors and the sequence goes on. It ends when the
// transport ends; an abnormal termination is yielded once before that.
// Ranging again continues from the next unread message.
func (r *Receiver[T, G]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := r.Receive(ctx)
			if err != nil && IsClosed(err) {
				if !errors.Is(err, io.EOF) {
					yield(v, err)
				}
				return
			}
			if err != nil && ctx.Err() != nil {
				yield(v, err)
				return
			}
			if !yield(v, err) {
				return
			}
		}
	}
}

// IsClosed reports whether err ends a receive sequence
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

type terminalError struct {
	err error
}

func closedError(err error) error {
	return &terminalError{err: err}
}

func (e *terminalError) Error() string {
	if errors.Is(e.err, io.EOF) {
		return ErrClosed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrClosed, e.err)
}

func (e *terminalError) Unwrap() []error {
	return []error{ErrClosed, e.err}
}

// Channel pairs the two halves bound to one connection
type Channel[Out, In, G any] struct {
	Sender   *Sender[Out, G]
	Receiver *Receiver[In, G]
}

// New creates both halves over a duplex transport
func New[Out, In, G any](sink Sink[G], source Source[G], serialize SerializeFunc[Out, G], deserialize DeserializeFunc[G, In]) *Channel[Out, In, G] {
	return &Channel[Out, In, G]{
		Sender:   NewSender(sink, serialize),
		Receiver: NewReceiver(source, deserialize),
	}
}
