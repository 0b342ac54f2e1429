package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
)

const (
	defaultSendBuffer   = 256
	defaultPingInterval = 30 * time.Second
	maxClientFrameBytes = 4096
)

// ConversationAuthorizer reports whether conversationID belongs to orgID.
type ConversationAuthorizer func(ctx context.Context, orgID, conversationID string) error

// HubOptions configures a Hub.
type HubOptions struct {
	SendBuffer   int
	PingInterval time.Duration
	// CheckOrigin is passed to the websocket upgrader; nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
	Authorize   ConversationAuthorizer
}

// Hub tracks websocket clients and their rooms on this replica. It is also
// the local Sink of the MultiEmitter.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}

	authorize    ConversationAuthorizer
	sendBuffer   int
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	baseLogger   *zap.Logger
}

// Ensure Hub implements Sink
var _ Sink = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(opts HubOptions, baseLogger *zap.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		rooms:        make(map[string]map[*Client]struct{}),
		clients:      make(map[*Client]struct{}),
		authorize:    opts.Authorize,
		sendBuffer:   opts.SendBuffer,
		pingInterval: opts.PingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		baseLogger: baseLogger.Named("realtime_hub"),
	}
}

// Name implements Sink.
func (h *Hub) Name() string { return "hub" }

// Publish delivers env to the clients in its room. Clients whose send
// buffer is full are disconnected instead of blocking the emitter.
func (h *Hub) Publish(_ context.Context, env *Envelope) error {
	data, err := json.Marshal(frame{Event: env.Event, Room: env.Room, Data: env.Payload})
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.rooms[env.Room] {
		if c.OrganizationID != env.OrganizationID {
			continue
		}
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.baseLogger.Warn("Dropping slow websocket client",
			zap.String("user_id", c.UserID),
			zap.String("organization_id", c.OrganizationID),
		)
		h.unregister(c)
	}
	return nil
}

// Serve upgrades the request and runs the connection until it closes. The
// client joins its organization and user rooms automatically.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, orgID, userID string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	c := newClient(h, ws, orgID, userID)
	h.register(c)
	h.join(c, Room(ScopeOrganization, orgID))
	h.join(c, Room(ScopeUser, userID))

	go c.writePump()
	c.readPump(r.Context())
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	observer.AddWebsocketConnections(1)
	h.baseLogger.Debug("Websocket client connected", zap.String("user_id", c.UserID), zap.String("organization_id", c.OrganizationID))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.removeFromRoomLocked(c, room)
	}
	h.mu.Unlock()

	c.close()
	observer.AddWebsocketConnections(-1)
	h.baseLogger.Debug("Websocket client disconnected", zap.String("user_id", c.UserID), zap.String("organization_id", c.OrganizationID))
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(c, room)
}

func (h *Hub) removeFromRoomLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// authorizeJoin decides whether c may enter room.
func (h *Hub) authorizeJoin(ctx context.Context, c *Client, room string) error {
	scope, id, ok := ParseRoom(room)
	if !ok {
		return fmt.Errorf("unknown room %q", room)
	}
	switch scope {
	case ScopeOrganization:
		if id != c.OrganizationID {
			return fmt.Errorf("room %q belongs to another organization", room)
		}
	case ScopeUser:
		if id != c.UserID {
			return fmt.Errorf("room %q belongs to another user", room)
		}
	case ScopeConversation:
		if h.authorize != nil {
			if err := h.authorize(ctx, c.OrganizationID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// ConnectionCount returns the number of connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	h.baseLogger.Info("[shutdown] Closing websocket clients", zap.Int("count", len(clients)))
	for _, c := range clients {
		h.unregister(c)
	}
}
