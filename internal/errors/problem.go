package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"

	"switchboard/internal/routing"
)

// ProblemContentType is the media type of RFC 7807 responses
const ProblemContentType = "application/problem+json"

// Common error types following RFC 7807
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeUnsupportedMedia = "/errors/unsupported-media-type"
	TypeRateLimit        = "/errors/rate-limit"
	TypeInternal         = "/errors/internal"
	TypeTimeout          = "/errors/timeout"
	TypeWebSocketUpgrade = "/errors/websocket/upgrade-failed"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]any `json:"-"`
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]any),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value any) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// StatusCode returns the HTTP status of the problem
func (pd *ProblemDetails) StatusCode() int {
	return pd.Status
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON flattens extensions next to the standard members
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]any, len(pd.Extensions)+5)

	for k, v := range pd.Extensions {
		data[k] = v
	}

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status
	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	return json.Marshal(data)
}

// Response renders the problem as a router response
func (pd *ProblemDetails) Response() *routing.Response {
	body, err := json.Marshal(pd)
	if err != nil {
		return routing.EmptyResponse(http.StatusInternalServerError)
	}
	return routing.NewResponse(pd.Status, ProblemContentType, body)
}

// Write writes the problem to w with the problem+json media type
func (pd *ProblemDetails) Write(w http.ResponseWriter) {
	resp := pd.Response()
	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// FromAPIError converts an APIError to problem details
func FromAPIError(apiErr *APIError, instance string) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case "INVALID_REQUEST", "VALIDATION_FAILED":
		problemType = TypeValidation
	case "NOT_FOUND":
		problemType = TypeNotFound
	case "UNSUPPORTED_MEDIA_TYPE":
		problemType = TypeUnsupportedMedia
	case "RATE_LIMIT_EXCEEDED":
		problemType = TypeRateLimit
	case "WEBSOCKET_UPGRADE_FAILED":
		problemType = TypeWebSocketUpgrade
	}

	problem := NewProblemDetails(
		apiErr.Status,
		problemType,
		http.StatusText(apiErr.Status),
		apiErr.Message,
		instance,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}
