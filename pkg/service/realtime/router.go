package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/interfaces"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
)

const (
	// TimestampFormat is ISO-8601 UTC with millisecond precision
	TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

	connectedMessage      = "Connected to shared server"
	projectRequiredReason = "projectId is required"
)

// Router partitions connections into project rooms and fans events out to
// them. One mutex serializes membership changes and enqueueing, so every
// member of a room observes the room's events in the same order.
type Router struct {
	mu       sync.Mutex
	sessions map[string]*Session
	rooms    map[string]map[string]*Session
	closed   bool

	now func() time.Time
}

var _ interfaces.EventPublisher = &Router{}

type Option func(*Router)

// WithClock replaces the time source used for event timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

func New(opts ...Option) *Router {
	r := &Router{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect registers conn. With a project ID the session joins its room, gets
// connected and the room gets the new count. Without one the session stays
// unbound and only receives an error event; it is not closed.
func (r *Router) Connect(ctx context.Context, conn Conn, projectID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, goerr.Wrap(ErrRouterClosed, "connection refused", goerr.V(ProjectIDKey, projectID))
	}

	s := newSession(conn, projectID)
	r.sessions[s.id] = s
	logger := logging.From(ctx).With("session_id", s.id)

	if projectID == "" {
		logger.Warn("client connected without projectId")
		r.send(ctx, s, model.Event{
			Name: types.EventError,
			Data: model.ErrorPayload{Message: projectRequiredReason},
		})
		return s, nil
	}

	key := roomKey(projectID)
	room, ok := r.rooms[key]
	if !ok {
		room = make(map[string]*Session)
		r.rooms[key] = room
	}
	room[s.id] = s

	logger.Info("client joined project", "project_id", projectID, "room_size", len(room))

	r.send(ctx, s, model.Event{
		Name: types.EventConnected,
		Data: model.ConnectedPayload{ProjectID: projectID, Message: connectedMessage},
	})
	r.broadcastOnlineCount(ctx, projectID)

	return s, nil
}

// HandleEvent applies a client event from s. Events from unbound or closed
// sessions and unknown event names are ignored.
func (r *Router) HandleEvent(ctx context.Context, s *Session, name types.EventName, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := logging.From(ctx).With("session_id", s.id, "event", name)

	if s.state == SessionUnbound || s.state == SessionClosed {
		logger.Debug("event from session outside any room ignored", "state", s.state.String())
		return
	}

	switch name {
	case types.EventChatMessage:
		message := chatPayload(payload)
		message["socketId"] = s.id
		message["timestamp"] = r.timestamp()
		r.broadcast(ctx, s.projectID, model.Event{Name: types.EventChatMessage, Data: message}, "")
		logger.Info("chat message", "project_id", s.projectID)

	case types.EventTyping:
		r.broadcast(ctx, s.projectID, model.Event{Name: types.EventTyping, Data: rawOrNil(payload)}, s.id)

	case types.EventStopTyping:
		r.broadcast(ctx, s.projectID, model.Event{Name: types.EventStopTyping}, s.id)

	case types.EventJoin:
		var join struct {
			Username string `json:"username"`
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &join); err != nil {
				logger.Debug("invalid join payload ignored", "error", err)
				return
			}
		}
		s.displayName = join.Username
		if join.Username != "" {
			s.state = SessionNamed
		} else if s.state == SessionNamed {
			s.state = SessionBound
		}

		r.broadcast(ctx, s.projectID, model.Event{
			Name: types.EventUserJoined,
			Data: model.PresencePayload{Username: join.Username, SocketID: s.id, Timestamp: r.timestamp()},
		}, "")
		r.broadcastOnlineCount(ctx, s.projectID)
		logger.Info("user joined project", "project_id", s.projectID, "username", join.Username)

	default:
		logger.Debug("unknown event ignored")
	}
}

// Disconnect removes s. The remaining room members get the new count and,
// when s had joined with a name, a userLeft event. Calling it again is a no-op.
func (r *Router) Disconnect(ctx context.Context, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnect(ctx, s)
}

func (r *Router) disconnect(ctx context.Context, s *Session) {
	if s.state == SessionClosed {
		return
	}
	named := s.state == SessionNamed && s.displayName != ""
	bound := s.state != SessionUnbound
	s.state = SessionClosed
	delete(r.sessions, s.id)

	if err := s.conn.Close(); err != nil {
		logging.From(ctx).Debug("closing connection failed", "session_id", s.id, "error", err)
	}

	logging.From(ctx).Info("client disconnected", "session_id", s.id, "project_id", s.projectID)

	if !bound {
		return
	}

	key := roomKey(s.projectID)
	room := r.rooms[key]
	delete(room, s.id)
	if len(room) == 0 {
		delete(r.rooms, key)
		return
	}

	r.broadcastOnlineCount(ctx, s.projectID)
	if named {
		r.broadcast(ctx, s.projectID, model.Event{
			Name: types.EventUserLeft,
			Data: model.PresencePayload{Username: s.displayName, SocketID: s.id, Timestamp: r.timestamp()},
		}, "")
	}
}

// Publish delivers an event to every member of the project's room and
// returns how many sessions it was queued for.
func (r *Router) Publish(projectID string, name types.EventName, data any) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0
	}
	return r.broadcast(context.Background(), projectID, model.Event{Name: name, Data: data}, "")
}

// ConnectedClients counts every live session, bound or not
func (r *Router) ConnectedClients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Router) RoomSize(projectID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomKey(projectID)])
}

// Close disconnects every session and refuses further connections
func (r *Router) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for _, s := range r.sessions {
		s.state = SessionClosed
		if err := s.conn.Close(); err != nil {
			logging.From(ctx).Debug("closing connection failed", "session_id", s.id, "error", err)
		}
	}
	r.sessions = make(map[string]*Session)
	r.rooms = make(map[string]map[string]*Session)

	logging.From(ctx).Info("router closed")
}

// broadcast queues ev for every room member except the session with id except.
// Must be called with r.mu held.
func (r *Router) broadcast(ctx context.Context, projectID string, ev model.Event, except string) int {
	room := r.rooms[roomKey(projectID)]
	delivered := 0
	for id, member := range room {
		if id == except {
			continue
		}
		if r.send(ctx, member, ev) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) broadcastOnlineCount(ctx context.Context, projectID string) {
	count := len(r.rooms[roomKey(projectID)])
	r.broadcast(ctx, projectID, model.Event{
		Name: types.EventOnlineCount,
		Data: model.OnlineCountPayload{Count: count},
	}, "")
}

// send queues ev on s. A session that cannot take the event is closed and
// skipped by later sends until its transport reports the disconnect.
func (r *Router) send(ctx context.Context, s *Session, ev model.Event) bool {
	if s.dropped {
		return false
	}
	if err := s.conn.Send(ev); err != nil {
		s.dropped = true
		logging.From(ctx).Warn("dropping slow or closed connection",
			"session_id", s.id,
			"event", ev.Name,
			"error", err,
		)
		if closeErr := s.conn.Close(); closeErr != nil {
			logging.From(ctx).Debug("closing connection failed", "session_id", s.id, "error", closeErr)
		}
		return false
	}
	return true
}

func (r *Router) timestamp() string {
	return r.now().UTC().Format(TimestampFormat)
}

// chatPayload returns the sender's fields as a map. Non-object payloads are
// kept under "message".
func chatPayload(payload json.RawMessage) map[string]any {
	if len(payload) == 0 || string(payload) == "null" {
		return map[string]any{}
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err == nil && fields != nil {
		return fields
	}

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return map[string]any{}
	}
	return map[string]any{"message": value}
}

func rawOrNil(payload json.RawMessage) any {
	if len(payload) == 0 {
		return nil
	}
	return payload
}
