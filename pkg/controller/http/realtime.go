package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/service/realtime"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
)

const (
	wsSendQueueSize  = 256
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMaxMessageSize = 1 << 20

	invalidFrameMessage = "invalid frame"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsFrame is the envelope of every message in both directions
type wsFrame struct {
	Event types.EventName `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsConn adapts a websocket to realtime.Conn. Events are queued on send and
// written by writeLoop, the only goroutine that writes to ws.
type wsConn struct {
	ws        *websocket.Conn
	send      chan model.Event
	done      chan struct{}
	closeOnce sync.Once
	written   chan struct{}
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:      ws,
		send:    make(chan model.Event, wsSendQueueSize),
		done:    make(chan struct{}),
		written: make(chan struct{}),
	}
}

func (c *wsConn) Send(ev model.Event) error {
	select {
	case <-c.done:
		return realtime.ErrConnClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	default:
		return realtime.ErrQueueFull
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *wsConn) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.ws.Close(); err != nil {
			logging.From(ctx).Debug("closing websocket failed", "error", err)
		}
		close(c.written)
	}()

	for {
		select {
		case ev := <-c.send:
			if err := c.write(ev); err != nil {
				logging.From(ctx).Debug("websocket write failed", "error", err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				_ = c.Close()
				return
			}

		case <-c.done:
			c.flush(ctx)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

// flush writes what is already queued so a final error event still reaches the peer
func (c *wsConn) flush(ctx context.Context) {
	for {
		select {
		case ev := <-c.send:
			if err := c.write(ev); err != nil {
				logging.From(ctx).Debug("websocket write failed during close", "error", err)
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(ev model.Event) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(ev)
}

// handleWebSocket upgrades the request and binds the connection to the room
// named by the projectId query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		logging.From(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx := r.Context()
	conn := newWSConn(ws)
	go conn.writeLoop(ctx)
	defer func() { <-conn.written }()

	session, err := s.realtime.Connect(ctx, conn, projectID)
	if err != nil {
		logging.From(ctx).Warn("websocket connection refused", "error", err)
		_ = conn.Close()
		return
	}
	defer s.realtime.Disconnect(ctx, session)

	ws.SetReadLimit(wsMaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.From(ctx).Debug("websocket read ended", "session_id", session.ID(), "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))

		var frame wsFrame
		if msgType != websocket.TextMessage || json.Unmarshal(data, &frame) != nil || frame.Event == "" {
			if err := conn.Send(model.Event{
				Name: types.EventError,
				Data: model.ErrorPayload{Message: invalidFrameMessage},
			}); err != nil {
				return
			}
			continue
		}

		s.realtime.HandleEvent(ctx, session, frame.Event, frame.Data)
	}
}
