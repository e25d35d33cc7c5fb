package websocket

import (
	"encoding/json"

	"github.com/isdelr/todo-api/internal/models"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload,omitempty"`
}

const (
	ActionEvent = "event"
	ActionPing  = "ping"
	ActionPong  = "pong"
	ActionError = "error"
)

// NewEventMessage encodes an activity event for the wire.
func NewEventMessage(event models.Event) []byte {
	return encode(Message{Action: ActionEvent, Payload: event})
}

// NewPongMessage answers a client ping.
func NewPongMessage() []byte {
	return encode(Message{Action: ActionPong})
}

// NewErrorMessage reports a problem with a client message.
func NewErrorMessage(msg string) []byte {
	return encode(Message{Action: ActionError, Payload: map[string]string{"error": msg}})
}

func encode(m Message) []byte {
	b, _ := json.Marshal(m)
	return b
}
