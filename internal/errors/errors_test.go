package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name       string
		apiError   *APIError
		wantMsg    string
		wantStatus int
	}{
		{
			name:       "not found",
			apiError:   NotFoundError("room"),
			wantMsg:    "room not found",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid request with cause",
			apiError:   InvalidRequestWithError(fmt.Errorf("unexpected EOF")),
			wantMsg:    "Invalid request format",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "field validation",
			apiError:   ErrValidation("text", "must not be empty"),
			wantMsg:    "Request validation failed",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "panic",
			apiError:   ErrPanic("boom"),
			wantMsg:    "Internal server error",
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.apiError.Error())
			assert.Equal(t, tt.wantStatus, tt.apiError.StatusCode())
		})
	}
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	problem := NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", "", "/missing").
		WithExtension("trace_id", "abc").
		WithExtension("status", 999)

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, TypeNotFound, got["type"])
	assert.Equal(t, "Not Found", got["title"])
	assert.Equal(t, float64(404), got["status"], "extensions must not override standard members")
	assert.Equal(t, "/missing", got["instance"])
	assert.Equal(t, "abc", got["trace_id"])
	assert.NotContains(t, got, "detail")
}

func TestProblemDetails_Response(t *testing.T) {
	resp := FromAPIError(ErrUnsupportedMediaType, "/api/v1/echo").Response()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Equal(t, ProblemContentType, resp.Header.Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &got))
	assert.Equal(t, TypeUnsupportedMedia, got["type"])
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", got["error_code"])
}

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	h := NewErrorHandler(testLogger(), false)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/echo", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"wrapped api error", fmt.Errorf("decode: %w", InvalidRequestWithError(io.ErrUnexpectedEOF)), http.StatusBadRequest, TypeValidation},
		{"rate limit", ErrRateLimitExceeded, http.StatusTooManyRequests, TypeRateLimit},
		{"unknown", assert.AnError, http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := h.ErrorToProblem(tt.err, r)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/api/v1/echo", problem.Instance)
		})
	}
}

func TestErrorHandler_Responses(t *testing.T) {
	tests := []struct {
		name       string
		respond    func(h *ErrorHandler, w http.ResponseWriter, r *http.Request)
		wantStatus int
		check      func(t *testing.T, w *httptest.ResponseRecorder, body map[string]any)
	}{
		{
			name: "handle error",
			respond: func(h *ErrorHandler, w http.ResponseWriter, r *http.Request) {
				h.HandleError(w, r, NotFoundError("room"))
			},
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, w *httptest.ResponseRecorder, body map[string]any) {
				assert.Equal(t, "NOT_FOUND", body["error_code"])
			},
		},
		{
			name: "panic",
			respond: func(h *ErrorHandler, w http.ResponseWriter, r *http.Request) {
				h.HandlePanic(w, r, "boom")
			},
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, w *httptest.ResponseRecorder, body map[string]any) {
				assert.Equal(t, "INTERNAL_SERVER_ERROR", body["error_code"])
				assert.Equal(t, map[string]any{"message": "boom"}, body["details"])
				assert.NotEmpty(t, body["stack"])
			},
		},
		{
			name: "rate limited",
			respond: func(h *ErrorHandler, w http.ResponseWriter, r *http.Request) {
				h.RateLimited(w, r, 2)
			},
			wantStatus: http.StatusTooManyRequests,
			check: func(t *testing.T, w *httptest.ResponseRecorder, body map[string]any) {
				assert.Equal(t, "2", w.Header().Get("Retry-After"))
				assert.Equal(t, float64(2), body["retry_after"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewErrorHandler(testLogger(), true)
			r := httptest.NewRequest(http.MethodGet, "/somewhere", nil)
			w := httptest.NewRecorder()

			tt.respond(h, w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, float64(tt.wantStatus), body["status"])
			assert.Equal(t, "/somewhere", body["instance"])
			if tt.check != nil {
				tt.check(t, w, body)
			}
		})
	}
}
