package model

import "github.com/musubi-dev/musubi/pkg/domain/types"

// Event is one frame of the realtime room protocol
type Event struct {
	Name types.EventName `json:"event"`
	Data any             `json:"data,omitempty"`
}

// ConnectedPayload acknowledges a bound connection to the joiner only
type ConnectedPayload struct {
	ProjectID string `json:"projectId"`
	Message   string `json:"message"`
}

// OnlineCountPayload carries the current room size
type OnlineCountPayload struct {
	Count int `json:"count"`
}

// PresencePayload announces a named member joining or leaving
type PresencePayload struct {
	Username  string `json:"username"`
	SocketID  string `json:"socketId"`
	Timestamp string `json:"timestamp"`
}

// ErrorPayload reports a protocol problem to one connection
type ErrorPayload struct {
	Message string `json:"message"`
}
