// Package events contains the messages exchanged on switchboard's
// WebSocket routes. Every message is a JSON text frame.
package events

import "time"

// EchoFrame is a message received on /ws/echo
type EchoFrame struct {
	Message string `json:"message"`
}

// EchoReply is a message sent on /ws/echo. Seq counts the frames answered
// on the connection, starting at 1.
type EchoReply struct {
	Echo string `json:"echo"`
	Seq  int    `json:"seq"`
}

// ChatInput is a message received on /ws/chat
type ChatInput struct {
	Text string `json:"text"`
}

// ChatEvent is broadcast to every member of the chat room
type ChatEvent struct {
	From string    `json:"from"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}
