package routing

import "context"

// Converter translates between an outer request/response pair and the inner
// typed pair consumed by a wrapped handler. ConvertRequest must not fail:
// anything that goes wrong while decoding belongs in the inner request.
type Converter[ORq, ORs, IRq, IRs any] interface {
	ConvertRequest(ctx context.Context, req ORq) IRq
	ConvertResponse(ctx context.Context, resp IRs) ORs
}

// Middleware is a continuation-passing stage. Respond receives the outer
// request and the inner continuation and decides how, and whether, to call it.
type Middleware[ORq, ORs, IRq, IRs any] interface {
	Respond(ctx context.Context, req ORq, next func(context.Context, IRq) IRs) ORs
}

// Convert wraps next with conv: the outer request is converted, handed to
// next, and the inner response converted back.
func Convert[ORq, ORs, IRq, IRs any](conv Converter[ORq, ORs, IRq, IRs], next func(context.Context, IRq) IRs) func(context.Context, ORq) ORs {
	return Chain[ORq, ORs, IRq, IRs](converterMiddleware[ORq, ORs, IRq, IRs]{conv: conv}, next)
}

// Chain wraps next with mw
func Chain[ORq, ORs, IRq, IRs any](mw Middleware[ORq, ORs, IRq, IRs], next func(context.Context, IRq) IRs) func(context.Context, ORq) ORs {
	return func(ctx context.Context, req ORq) ORs {
		return mw.Respond(ctx, req, next)
	}
}

// converterMiddleware runs a Converter as a Middleware
type converterMiddleware[ORq, ORs, IRq, IRs any] struct {
	conv Converter[ORq, ORs, IRq, IRs]
}

func (m converterMiddleware[ORq, ORs, IRq, IRs]) Respond(ctx context.Context, req ORq, next func(context.Context, IRq) IRs) ORs {
	inner := m.conv.ConvertRequest(ctx, req)
	return m.conv.ConvertResponse(ctx, next(ctx, inner))
}

// DefaultConverter passes requests and responses through unchanged
type DefaultConverter struct{}

// ConvertRequest returns req
func (DefaultConverter) ConvertRequest(_ context.Context, req *Request) *Request {
	return req
}

// ConvertResponse returns resp
func (DefaultConverter) ConvertResponse(_ context.Context, resp *Response) *Response {
	return resp
}

