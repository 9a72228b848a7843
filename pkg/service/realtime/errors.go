package realtime

import "github.com/m-mizutani/goerr/v2"

var (
	ErrRouterClosed = goerr.New("router is closed")
	ErrQueueFull    = goerr.New("outbound queue is full")
	ErrConnClosed   = goerr.New("connection is closed")
)

const (
	SessionIDKey = "session_id"
	ProjectIDKey = "project_id"
	EventKey     = "event"
)
