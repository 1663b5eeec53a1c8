package types

import "time"

// Outbound message types.
const (
	TypeSystem       = "system"
	TypePong         = "pong"
	TypeHeartbeatAck = "heartbeat_ack"
	TypeError        = "error"
	TypeLLMFrame     = "llm_frame"
	TypeLLMResponse  = "llm_response"
	TypeLLMError     = "llm_error"
	TypeLLMStatus    = "llm_status"
)

// Inbound message types accepted while a connection is active.
// Everything else is rejected; this is a producer-only protocol.
const (
	TypePing      = "ping"
	TypeHeartbeat = "heartbeat"
)

// Close codes sent when a connect attempt is rejected.
const (
	CloseBadRequest     = 4000 // no user id in the request path
	CloseUnauthorized   = 4001 // missing or invalid credential
	CloseForbidden      = 4003 // authenticated identity does not match the path
	CloseOriginRejected = 4403 // origin not in the allow-list
	CloseTooManyConns   = 4429 // per-user connection limit reached
)

// Message is the wire envelope for every frame sent to a client.
// Only the fields relevant to Type are populated; empty fields are
// dropped from the JSON.
type Message struct {
	Type       string         `json:"type"`
	Timestamp  string         `json:"timestamp,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	ChatID     string         `json:"chat_id,omitempty"`
	Status     string         `json:"status,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	Frame      map[string]any `json:"frame,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	ServerTime string         `json:"server_time,omitempty"`
}

// Inbound is the client-to-server message shape. Clients may only send
// connection health checks.
type Inbound struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Timestamp returns the current time in the wire timestamp format.
func Timestamp() string {
	return time.Now().Format(time.RFC3339Nano)
}

// ConnectionInfo holds metadata about a live connection.
type ConnectionInfo struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Group         string    `json:"group"`
	State         string    `json:"state"`
	ClientIP      string    `json:"client_ip,omitempty"`
	EstablishedAt time.Time `json:"established_at"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	CloseWithCode(code int, reason string) error
	Close() error
}
