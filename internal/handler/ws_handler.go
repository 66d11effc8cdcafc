package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"chatserver/internal/clog"
	"chatserver/internal/realtime"
	"chatserver/internal/service"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	outboundBuffer = 64
)

// clientAction enumerates everything a client may ask for over the socket.
// Unknown actions are dropped, not fatal, so older servers tolerate newer
// clients.
type clientAction uint8

const (
	actionPing clientAction = iota
	actionTypingStart
	actionTypingStop
	actionMarkRead
)

var clientActions = map[string]clientAction{
	"ping":         actionPing,
	"typing.start": actionTypingStart,
	"typing.stop":  actionTypingStop,
	"mark.read":    actionMarkRead,
}

type clientFrame struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
}

var errOutboundFull = errors.New("outbound buffer full")

// wsConnection adapts one gorilla socket to the registry's Connection. Sends
// enqueue onto a buffered channel drained by a single write pump; a full
// buffer means the client cannot keep up and the connection is treated as
// dead.
type wsConnection struct {
	socket    *websocket.Conn
	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConnection(socket *websocket.Conn) *wsConnection {
	return &wsConnection{
		socket:   socket,
		outbound: make(chan []byte, outboundBuffer),
		done:     make(chan struct{}),
	}
}

func (c *wsConnection) Send(payload []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	case c.outbound <- payload:
		return nil
	default:
		return errOutboundFull
	}
}

func (c *wsConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.socket.Close()
	})
	return err
}

func (c *wsConnection) writePump() {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.outbound:
			c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		}
	}
}

// WSHandler upgrades clients onto the realtime fanout. The socket is the
// delivery path for events and the ingress path for presence signals; all
// durable operations stay on the HTTP surface.
type WSHandler struct {
	registry        *realtime.Registry
	presenceService service.PresenceService
	messageService  service.MessageService
	logger          clog.Logger
	upgrader        websocket.Upgrader
}

func NewWSHandler(registry *realtime.Registry, presenceService service.PresenceService, messageService service.MessageService, logger clog.Logger) *WSHandler {
	return &WSHandler{
		registry:        registry,
		presenceService: presenceService,
		messageService:  messageService,
		logger:          logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy belongs to the edge in front of this core.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Logf(format string, v ...any) {
	h.logger.Logf(format, v...)
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logf("Upgrade failed for user %d {%v}", userID, err)
		return
	}

	conn := newWSConnection(socket)
	h.registry.Register(userID, conn)
	h.Logf("User %d connected, %d connections total", userID, h.registry.ConnectionCount())

	if err := h.presenceService.SetOnline(userID); err != nil {
		h.Logf("Could not mark user %d online {%v}", userID, err)
	}

	// The greeting carries the resync watermark so the client can page any
	// history it missed before this socket existed.
	greeting, _ := json.Marshal(map[string]any{
		"type":          "connection.established",
		"latest_cursor": h.messageService.LatestCursor(),
	})
	conn.Send(greeting)

	go conn.writePump()
	h.readPump(userID, conn)
}

// readPump consumes client frames until the socket dies, then tears the
// connection down. Presence only flips to offline when the user's last
// connection goes away.
func (h *WSHandler) readPump(userID uint64, conn *wsConnection) {
	defer func() {
		h.registry.Unregister(conn)
		conn.Close()
		if !h.registry.IsConnected(userID) {
			if err := h.presenceService.SetOffline(userID); err != nil {
				h.Logf("Could not mark user %d offline {%v}", userID, err)
			}
		}
		h.Logf("User %d disconnected, %d connections total", userID, h.registry.ConnectionCount())
	}()

	for {
		var frame clientFrame
		if err := conn.socket.ReadJSON(&frame); err != nil {
			return
		}

		action, known := clientActions[frame.Action]
		if !known {
			h.Logf("Ignoring unknown action %q from user %d", frame.Action, userID)
			continue
		}

		switch action {
		case actionPing:
			if err := h.presenceService.SetOnline(userID); err != nil {
				h.Logf("Heartbeat failed for user %d {%v}", userID, err)
			}
		case actionTypingStart, actionTypingStop:
			typing := action == actionTypingStart
			if err := h.presenceService.SetTyping(userID, frame.ConversationID, typing, conn); err != nil {
				h.Logf("Typing signal rejected for user %d {%v}", userID, err)
			}
		case actionMarkRead:
			if _, err := h.messageService.MarkRead(frame.ConversationID, userID); err != nil {
				h.Logf("Mark read rejected for user %d {%v}", userID, err)
			}
		}
	}
}
