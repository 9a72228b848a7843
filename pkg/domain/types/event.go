package types

// EventName is the name of a realtime room protocol event
type EventName string

// Server to client events
const (
	EventConnected     EventName = "connected"
	EventOnlineCount   EventName = "onlineCount"
	EventUserJoined    EventName = "userJoined"
	EventUserLeft      EventName = "userLeft"
	EventError         EventName = "error"
	EventActionUpdated EventName = "actionUpdated"
)

// Events accepted from clients. Chat and typing events are echoed under the same name.
const (
	EventChatMessage EventName = "chat message"
	EventJoin        EventName = "join"
	EventTyping      EventName = "typing"
	EventStopTyping  EventName = "stop typing"
)

func (e EventName) String() string {
	return string(e)
}
