package websocket

import "time"

type MessageType string

const (
	MessageTypeStepChanged MessageType = "step_changed"
	MessageTypeRedirect    MessageType = "redirect"
	MessageTypeStatus      MessageType = "status"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
)

// Message is the JSON frame exchanged with browser clients
type Message struct {
	Type      MessageType    `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Target    string         `json:"target,omitempty"`
}
