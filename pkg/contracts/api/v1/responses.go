package api

import "net/http"

// HealthResponse is the body of GET /api/v1/health
type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	GoVersion   string `json:"go_version"`
	Uptime      string `json:"uptime"`
	ChatClients int    `json:"chat_clients"`
}

// StatusCode implements api.StatusCoder
func (HealthResponse) StatusCode() int { return http.StatusOK }

// EchoResponse answers an EchoRequest
type EchoResponse struct {
	Message   string `json:"message"`
	Length    int    `json:"length"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusCode implements api.StatusCoder
func (EchoResponse) StatusCode() int { return http.StatusOK }
