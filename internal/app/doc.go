// Package app wires switchboard's components into a runnable service and
// owns their lifecycle.
//
// # Initialization Flow
//
// NewApplication builds everything from a loaded configuration:
//
//  1. Initialize the JSON logger
//  2. Create the Prometheus registry with the Go and process collectors
//  3. Initialize OpenTelemetry, exporting instruments through that registry
//  4. Create the dispatch metrics and the chat hub
//  5. Build the router with the demo routes
//  6. Create the HTTP server around the router
//
// # Routes
//
//	GET  /api/v1/health  service status
//	POST /api/v1/echo    validated JSON echo
//	GET  /ws/echo        JSON echo over WebSocket
//	GET  /ws/chat?name=  chat room backed by the hub
//
// Anything else is answered by a problem+json 404.
//
// # Graceful Shutdown
//
// Serve stops when its context is cancelled. The HTTP server drains active
// requests, then the chat hub closes every member's queue and telemetry is
// flushed. Upgraded connections are not drained by the HTTP server; they end
// when their peer goes away.
package app
