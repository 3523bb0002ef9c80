package routing

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upperConverter turns a *Request into its upper-cased path and renders
// an int back as the response body.
type upperConverter struct {
	calls *[]string
}

func (c upperConverter) ConvertRequest(ctx context.Context, req *Request) string {
	*c.calls = append(*c.calls, "request")
	return strings.ToUpper(req.Path)
}

func (c upperConverter) ConvertResponse(ctx context.Context, n int) *Response {
	*c.calls = append(*c.calls, "response")
	return NewResponse(http.StatusOK, "text/plain", []byte(strconv.Itoa(n)))
}

// prefixMiddleware prepends a marker to the inner request and may short-circuit
type prefixMiddleware struct {
	marker string
	block  bool
}

func (m prefixMiddleware) Respond(ctx context.Context, req string, next func(context.Context, string) int) int {
	if m.block {
		return -1
	}
	return next(ctx, m.marker+req) * 10
}

func TestConvert(t *testing.T) {
	var calls []string
	h := Convert[*Request, *Response](upperConverter{calls: &calls}, func(ctx context.Context, s string) int {
		calls = append(calls, "handler:"+s)
		return len(s)
	})

	resp := h(context.Background(), &Request{Path: "/abc"})

	require.NotNil(t, resp)
	assert.Equal(t, "4", string(resp.Body))
	assert.Equal(t, []string{"request", "handler:/ABC", "response"}, calls)
}

func TestChainNested(t *testing.T) {
	var calls []string
	inner := func(ctx context.Context, s string) int {
		calls = append(calls, "handler:"+s)
		return len(s)
	}

	h := Convert[*Request, *Response](upperConverter{calls: &calls},
		Chain[string, int](prefixMiddleware{marker: ">>"}, inner))

	resp := h(context.Background(), &Request{Path: "/x"})

	assert.Equal(t, "40", string(resp.Body))
	assert.Equal(t, []string{"request", "handler:>>/X", "response"}, calls)
}

func TestChainShortCircuit(t *testing.T) {
	called := false
	h := Chain[string, int](prefixMiddleware{block: true}, func(ctx context.Context, s string) int {
		called = true
		return 0
	})

	assert.Equal(t, -1, h(context.Background(), "x"))
	assert.False(t, called)
}

func TestDefaultConverterInRouter(t *testing.T) {
	h := Convert[*Request, *Response](DefaultConverter{}, func(ctx context.Context, req *Request) *Response {
		return NewResponse(http.StatusAccepted, "", []byte(req.Path))
	})

	router, err := NewBuilder().
		Route(http.MethodPatch, "/p", h).
		Fallback(textHandler("fallback")).
		Logger(testLogger()).
		Build()
	require.NoError(t, err)

	resp := router.Process(context.Background(), &Request{Method: http.MethodPatch, Path: "/p"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "/p", string(resp.Body))
	assert.Empty(t, resp.Header.Get("Content-Type"))
}
