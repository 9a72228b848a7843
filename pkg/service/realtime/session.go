package realtime

import (
	"github.com/google/uuid"
	"github.com/musubi-dev/musubi/pkg/domain/model"
)

// Conn is the transport side of a session. Send must not block: it enqueues
// the event or fails, and a failure makes the router drop the connection.
type Conn interface {
	Send(event model.Event) error
	Close() error
}

type SessionState int

const (
	// SessionUnbound is connected without a project and belongs to no room
	SessionUnbound SessionState = iota
	SessionBound
	// SessionNamed has announced a display name with join
	SessionNamed
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionUnbound:
		return "unbound"
	case SessionBound:
		return "bound"
	case SessionNamed:
		return "named"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live connection. ID and ProjectID never change after Connect;
// the display name and state are owned by the Router and guarded by its lock.
type Session struct {
	id        string
	projectID string
	conn      Conn

	displayName string
	state       SessionState
	// dropped is set once a send fails; the session waits for Disconnect
	dropped bool
}

func newSession(conn Conn, projectID string) *Session {
	s := &Session{
		id:        uuid.NewString(),
		projectID: projectID,
		conn:      conn,
		state:     SessionUnbound,
	}
	if projectID != "" {
		s.state = SessionBound
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) ProjectID() string {
	return s.projectID
}

func roomKey(projectID string) string {
	return "project:" + projectID
}
