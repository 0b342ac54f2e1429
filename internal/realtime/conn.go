package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/tenant"
)

const writeWait = 10 * time.Second

// Client actions sent over the socket.
const (
	actionJoin  = "join"
	actionLeave = "leave"
	actionPing  = "ping"
)

// Client is one websocket connection. rooms is guarded by the hub lock.
type Client struct {
	OrganizationID string
	UserID         string

	hub       *Hub
	ws        *websocket.Conn
	send      chan []byte
	rooms     map[string]struct{}
	closeOnce sync.Once
	done      chan struct{}
}

type clientRequest struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

type clientReply struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Error string `json:"error,omitempty"`
}

func newClient(h *Hub, ws *websocket.Conn, orgID, userID string) *Client {
	return &Client{
		OrganizationID: orgID,
		UserID:         userID,
		hub:            h,
		ws:             ws,
		send:           make(chan []byte, h.sendBuffer),
		rooms:          make(map[string]struct{}),
		done:           make(chan struct{}),
	}
}

// enqueue never blocks; false means the buffer is full or the client is gone.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump(ctx context.Context) {
	defer c.hub.unregister(c)

	pongWait := c.hub.pingInterval * 2
	c.ws.SetReadLimit(maxClientFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx = tenant.WithOrganizationID(context.WithoutCancel(ctx), c.OrganizationID)
	ctx = tenant.WithUserID(ctx, c.UserID)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.baseLogger.Debug("Websocket read failed", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}
		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	var req clientRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(clientReply{Event: "error", Error: "malformed request"})
		return
	}

	switch req.Action {
	case actionJoin:
		if err := c.hub.authorizeJoin(ctx, c, req.Room); err != nil {
			c.reply(clientReply{Event: "error", Room: req.Room, Error: err.Error()})
			return
		}
		c.hub.join(c, req.Room)
		c.reply(clientReply{Event: "joined", Room: req.Room})
	case actionLeave:
		c.hub.leave(c, req.Room)
		c.reply(clientReply{Event: "left", Room: req.Room})
	case actionPing:
		c.reply(clientReply{Event: "pong"})
	default:
		c.reply(clientReply{Event: "error", Error: "unknown action " + req.Action})
	}
}

func (c *Client) reply(r clientReply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		c.hub.unregister(c)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
