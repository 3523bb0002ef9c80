// Package api contains the HTTP payloads of switchboard's v1 routes
package api

// EchoRequest is the body of POST /api/v1/echo
type EchoRequest struct {
	Message string `json:"message" validate:"required,max=1024"`
	// Repeat concatenates the message this many times, 0 and 1 mean once
	Repeat int `json:"repeat" validate:"gte=0,lte=10"`
}
