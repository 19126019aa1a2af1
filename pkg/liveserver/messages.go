package liveserver

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// MessageType constants
const (
	TypeSnapshot = "snapshot"
	TypeFill     = "fill"
	TypeHalt     = "halt"
	TypePending  = "pending"
)
