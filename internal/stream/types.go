package stream

import (
	"errors"
	"time"

	"github.com/rickgao/coinboard/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrHubClosed       = errors.New("stream hub closed")
)

// Message types pushed by the hub.
const (
	TypeBoard = "board"
	TypeAck   = "ack"
	TypeError = "error"
)

// Command ops accepted by the hub.
const (
	OpSort   = "sort"
	OpSelect = "select"
)

// Message is a frame pushed from the hub to a client.
type Message struct {
	Type      string           `json:"type"`
	Op        string           `json:"op,omitempty"`
	Board     *model.Board     `json:"board,omitempty"`
	Selection *model.Selection `json:"selection,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Command is a frame sent from a client to the hub.
type Command struct {
	Op   string `json:"op"`
	Sort string `json:"sort,omitempty"`
	Code string `json:"code,omitempty"`
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}
