package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"switchboard/internal/infrastructure"
	"switchboard/internal/routing"
)

// JSONContentType is the only request media type the JSON converter accepts
const JSONContentType = "application/json"

// Decode failures reported through RequestOrigin.Err
var (
	ErrContentTypeMissed    = errors.New("api: Content-Type header is missing")
	ErrContentTypeIncorrect = errors.New("api: Content-Type is not application/json")
)

// DecodeError wraps a failure to read or parse the request body
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("api: decode request body: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// JSONConverter holds the JSON encoding options shared by every route
type JSONConverter struct {
	// Pretty indents encoded bodies
	Pretty bool
}

// Marshal encodes v compactly or indented, per the converter's setting
func (c JSONConverter) Marshal(v any) ([]byte, error) {
	if c.Pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// Decode reads a JSON body from req into a value of type D. The content
// type must be exactly application/json.
func Decode[D any](req *routing.Request) (D, error) {
	var data D

	switch contentType := req.Header.Get("Content-Type"); contentType {
	case "":
		return data, ErrContentTypeMissed
	case JSONContentType:
	default:
		return data, fmt.Errorf("%w: got %q", ErrContentTypeIncorrect, contentType)
	}

	if req.Body == nil {
		return data, &DecodeError{Err: errors.New("request has no body")}
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return data, &DecodeError{Err: err}
	}
	// the body must hold exactly one JSON value
	if err := json.Unmarshal(raw, &data); err != nil {
		var zero D
		return zero, &DecodeError{Err: err}
	}
	return data, nil
}

// JSONStage converts between router requests and typed content. Decoding
// happens once, in ConvertRequest; create then builds the content and
// decides what a decode failure means for it.
type JSONStage[D, C any, S, F StatusCoder] struct {
	conv   JSONConverter
	create func(RequestOrigin[D]) C
	logger *slog.Logger
}

// NewJSONStage creates a JSON conversion stage
func NewJSONStage[D, C any, S, F StatusCoder](conv JSONConverter, create func(RequestOrigin[D]) C) *JSONStage[D, C, S, F] {
	return &JSONStage[D, C, S, F]{
		conv:   conv,
		create: create,
		logger: infrastructure.GetLogger().With(slog.String("component", "api.json")),
	}
}

// ConvertRequest decodes the body and builds the typed request. It never
// fails: decode errors are carried in the origin handed to create.
func (s *JSONStage[D, C, S, F]) ConvertRequest(ctx context.Context, req *routing.Request) Request[C] {
	data, err := Decode[D](req)
	query, _ := url.ParseQuery(req.RawQuery)

	return Request[C]{Content: s.create(RequestOrigin[D]{
		Method:     req.Method,
		Path:       req.Path,
		Query:      query,
		Header:     req.Header,
		RemoteAddr: req.RemoteAddr,
		Extensions: req.Extensions,
		Data:       data,
		Err:        err,
	})}
}

// ConvertResponse encodes the selected variant. If encoding fails the
// response is a bare 500.
func (s *JSONStage[D, C, S, F]) ConvertResponse(ctx context.Context, resp Response[S, F]) *routing.Response {
	body, err := s.conv.Marshal(resp.Content)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode response content",
			slog.String("error", err.Error()))
		return routing.EmptyResponse(http.StatusInternalServerError)
	}
	return routing.NewResponse(resp.Content.StatusCode(), JSONContentType, body)
}

// Handle builds a route handler that runs h behind a JSON stage
func Handle[D, C any, S, F StatusCoder](conv JSONConverter, create func(RequestOrigin[D]) C, h func(context.Context, Request[C]) Response[S, F]) routing.Handler {
	stage := NewJSONStage[D, C, S, F](conv, create)
	return routing.Convert[*routing.Request, *routing.Response, Request[C], Response[S, F]](stage, h)
}
