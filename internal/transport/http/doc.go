// Package http serves a routing.Router over net/http.
//
// Adapter converts each *http.Request into a routing.Request, dispatches it
// and writes the routing.Response back. Every request carries an upgrade
// future: when the router answers 101 Switching Protocols the adapter
// hijacks the connection, writes the response head itself and resolves the
// future with the raw connection, which the WebSocket middleware is waiting
// on. Any other answer resolves the future with ErrNotUpgraded.
//
// Server wraps the adapter in the chi middleware stack:
//
//	OpenTelemetry span -> RequestID -> RealIP -> StructuredLogger ->
//	Recoverer -> SecurityHeaders -> [RateLimiter] -> Adapter
//
// The Prometheus scrape endpoint is mounted beside the adapter when enabled.
package http
