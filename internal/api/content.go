package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"switchboard/internal/routing"
)

// StatusCoder is implemented by response payloads that pick their own HTTP status
type StatusCoder interface {
	StatusCode() int
}

// RequestOrigin is everything a converter knows about a request once it has
// tried to decode the body into D. Err is set when decoding failed, in which
// case Data holds D's zero value.
type RequestOrigin[D any] struct {
	Method     string
	Path       string
	Query      url.Values
	Header     http.Header
	RemoteAddr string
	Extensions *routing.Extensions
	Data       D
	Err        error
}

// Request is the typed request handed to a content handler
type Request[C any] struct {
	Content C
}

// ResponseContent holds exactly one of a success or a failure payload
type ResponseContent[S, F StatusCoder] struct {
	success S
	failure F
	failed  bool
}

// Success creates response content carrying s
func Success[S, F StatusCoder](s S) ResponseContent[S, F] {
	return ResponseContent[S, F]{success: s}
}

// Failure creates response content carrying f
func Failure[S, F StatusCoder](f F) ResponseContent[S, F] {
	return ResponseContent[S, F]{failure: f, failed: true}
}

// IsSuccess reports whether the content is the success variant
func (c ResponseContent[S, F]) IsSuccess() bool {
	return !c.failed
}

// Success returns the success payload, if that is the selected variant
func (c ResponseContent[S, F]) Success() (S, bool) {
	return c.success, !c.failed
}

// Failure returns the failure payload, if that is the selected variant
func (c ResponseContent[S, F]) Failure() (F, bool) {
	return c.failure, c.failed
}

// StatusCode returns the status of the selected variant
func (c ResponseContent[S, F]) StatusCode() int {
	if c.failed {
		return c.failure.StatusCode()
	}
	return c.success.StatusCode()
}

// MarshalJSON encodes the selected variant on its own, without a tag
func (c ResponseContent[S, F]) MarshalJSON() ([]byte, error) {
	if c.failed {
		return json.Marshal(c.failure)
	}
	return json.Marshal(c.success)
}

// Response is the typed response returned by a content handler
type Response[S, F StatusCoder] struct {
	Content ResponseContent[S, F]
}

// OK wraps a success payload in a response
func OK[S, F StatusCoder](s S) Response[S, F] {
	return Response[S, F]{Content: Success[S, F](s)}
}

// Fail wraps a failure payload in a response
func Fail[S, F StatusCoder](f F) Response[S, F] {
	return Response[S, F]{Content: Failure[S, F](f)}
}
