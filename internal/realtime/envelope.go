package realtime

import (
	"encoding/json"
	"strings"
	"time"
)

// Scope names the audience of an event.
type Scope string

const (
	ScopeOrganization Scope = "org"
	ScopeUser         Scope = "user"
	ScopeConversation Scope = "conversation"
)

// Envelope is one emitted event addressed to a room. It is the unit handed
// to every sink and the body relayed across replicas.
type Envelope struct {
	ID             string          `json:"id"`
	Event          string          `json:"event"`
	Room           string          `json:"room"`
	OrganizationID string          `json:"organizationId"`
	Payload        json.RawMessage `json:"payload"`
	Origin         string          `json:"origin,omitempty"`
	EmittedAt      time.Time       `json:"emittedAt"`
}

// Scope returns the scope encoded in the room name.
func (e *Envelope) Scope() Scope {
	scope, _, _ := strings.Cut(e.Room, ":")
	return Scope(scope)
}

// Room builds the room name for scope and id, e.g. "conversation:42".
func Room(scope Scope, id string) string {
	return string(scope) + ":" + id
}

// ParseRoom splits a room name. ok is false for unknown scopes or empty ids.
func ParseRoom(room string) (Scope, string, bool) {
	scope, id, found := strings.Cut(room, ":")
	if !found || id == "" {
		return "", "", false
	}
	switch Scope(scope) {
	case ScopeOrganization, ScopeUser, ScopeConversation:
		return Scope(scope), id, true
	}
	return "", "", false
}

// frame is what websocket clients receive.
type frame struct {
	Event string          `json:"event"`
	Room  string          `json:"room"`
	Data  json.RawMessage `json:"data"`
}
