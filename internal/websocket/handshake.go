package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"switchboard/internal/routing"
)

// keyGUID is appended to the client key before hashing (RFC 6455, section 1.3)
const keyGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handshake validation errors, in the order they are checked
var (
	ErrWrongHTTPMethod          = errors.New("websocket: handshake method is not GET")
	ErrWrongHTTPVersion         = errors.New("websocket: handshake requires HTTP/1.1 or later")
	ErrMissingConnectionUpgrade = errors.New(`websocket: "Connection" header does not contain "Upgrade"`)
	ErrMissingUpgradeWebSocket  = errors.New(`websocket: "Upgrade" header is not "websocket"`)
	ErrMissingWebSocketVersion  = errors.New(`websocket: "Sec-WebSocket-Version" header is not "13"`)
	ErrMissingWebSocketKey      = errors.New(`websocket: "Sec-WebSocket-Key" header is missing`)
)

// ErrUpgradeUnavailable is returned for a valid handshake arriving over a
// transport that cannot hand over its connection
var ErrUpgradeUnavailable = errors.New("websocket: transport cannot take over the connection")

// Negotiation is the state of one accepted handshake
type Negotiation struct {
	AcceptKey string
	upgrade   routing.OnUpgrade
}

// Negotiate validates an opening handshake. Checks run in a fixed order and
// the first failure is returned.
func Negotiate(req *routing.Request) (*Negotiation, error) {
	if req.Method != http.MethodGet {
		return nil, ErrWrongHTTPMethod
	}
	if !req.ProtoAtLeast(1, 1) {
		return nil, ErrWrongHTTPVersion
	}
	if !headerContainsToken(req.Header.Get("Connection"), "upgrade") {
		return nil, ErrMissingConnectionUpgrade
	}
	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return nil, ErrMissingUpgradeWebSocket
	}
	if req.Header.Get("Sec-WebSocket-Version") != "13" {
		return nil, ErrMissingWebSocketVersion
	}
	if len(req.Header.Values("Sec-WebSocket-Key")) == 0 {
		return nil, ErrMissingWebSocketKey
	}
	if req.Upgrade == nil {
		return nil, ErrUpgradeUnavailable
	}

	return &Negotiation{
		AcceptKey: AcceptKey(req.Header.Get("Sec-WebSocket-Key")),
		upgrade:   req.Upgrade,
	}, nil
}

// AcceptKey computes the Sec-WebSocket-Accept value for a client key
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(keyGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// SwitchingProtocols builds the 101 response completing the handshake
func (n *Negotiation) SwitchingProtocols() *routing.Response {
	resp := routing.EmptyResponse(http.StatusSwitchingProtocols)
	resp.Header.Set("Connection", "Upgrade")
	resp.Header.Set("Upgrade", "websocket")
	resp.Header.Set("Sec-WebSocket-Accept", n.AcceptKey)
	return resp
}

// headerContainsToken splits on spaces and commas and compares case-insensitively
func headerContainsToken(value, token string) bool {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ','
	})
	for _, f := range fields {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

// rejectReason labels a handshake error for metrics
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrWrongHTTPMethod):
		return "wrong_method"
	case errors.Is(err, ErrWrongHTTPVersion):
		return "wrong_version"
	case errors.Is(err, ErrMissingConnectionUpgrade):
		return "missing_connection_upgrade"
	case errors.Is(err, ErrMissingUpgradeWebSocket):
		return "missing_upgrade_websocket"
	case errors.Is(err, ErrMissingWebSocketVersion):
		return "unsupported_version"
	case errors.Is(err, ErrMissingWebSocketKey):
		return "missing_key"
	case errors.Is(err, ErrUpgradeUnavailable):
		return "upgrade_unavailable"
	default:
		return "unknown"
	}
}
