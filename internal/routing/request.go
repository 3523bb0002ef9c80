package routing

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
)

// OnUpgrade resolves once the transport has completed the physical takeover
// of the connection that carried a 101 response.
type OnUpgrade interface {
	// Claim announces, before the 101 response is returned, that a session
	// will Wait for the connection. Transports refuse to switch protocols
	// for an unclaimed future.
	Claim()
	// Wait blocks until the raw connection is available or the takeover failed
	Wait(ctx context.Context) (net.Conn, *bufio.ReadWriter, error)
}

// Request is the transport-neutral inbound call handed to the router
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	ProtoMajor int
	ProtoMinor int
	Header     http.Header
	Body       io.ReadCloser
	RemoteAddr string

	// Extensions is shared, read-only side-channel data set up by the transport
	Extensions *Extensions

	// Upgrade is nil when the transport cannot hand over the connection
	Upgrade OnUpgrade
}

// ProtoAtLeast reports whether the HTTP protocol used in the request is at
// least major.minor.
func (r *Request) ProtoAtLeast(major, minor int) bool {
	return r.ProtoMajor > major ||
		r.ProtoMajor == major && r.ProtoMinor >= minor
}

// Response is produced by a handler and written back by the transport
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResponse creates a response with the given status, content type and body
func NewResponse(statusCode int, contentType string, body []byte) *Response {
	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &Response{
		StatusCode: statusCode,
		Header:     header,
		Body:       body,
	}
}

// EmptyResponse creates a response with no headers and an empty body
func EmptyResponse(statusCode int) *Response {
	return &Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
	}
}

// Handler turns a request into exactly one response
type Handler func(ctx context.Context, req *Request) *Response

// Extensions is an immutable bag of values shared by every request of a
// server. Values are looked up by their dynamic type.
type Extensions struct {
	values []any
}

// NewExtensions creates an extension bag holding the given values
func NewExtensions(values ...any) *Extensions {
	vs := make([]any, len(values))
	copy(vs, values)
	return &Extensions{values: vs}
}

// Len returns the number of stored values
func (e *Extensions) Len() int {
	if e == nil {
		return 0
	}
	return len(e.values)
}

// ExtensionOf returns the first value in the bag assignable to T
func ExtensionOf[T any](e *Extensions) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	for _, v := range e.values {
		if t, ok := v.(T); ok {
			return t, true
		}
	}
	return zero, false
}
