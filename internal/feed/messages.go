// Package feed streams domain events and metric snapshots to dashboard
// clients over WebSocket.
package feed

import "encoding/json"

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server messages.
type ClientMessage struct {
	Type string          `json:"type"` // "subscribe", "snapshot", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscribeData narrows the event stream to the given categories
// ("complaint", "alert"). An empty list restores the full stream.
type SubscribeData struct {
	Categories []string `json:"categories"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "hello", "event", "metrics", "subscribed", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// HelloData is the first message on every connection.
type HelloData struct {
	ClientID string `json:"client_id"`
}

// SubscribedData acknowledges a subscribe request.
type SubscribedData struct {
	Categories []string `json:"categories"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
