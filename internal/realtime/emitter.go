package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// Emitter pushes events to connected clients. Emission is best effort:
// failures are logged and never returned to the caller.
type Emitter interface {
	EmitToOrganization(ctx context.Context, orgID, event string, payload interface{})
	EmitToConversation(ctx context.Context, orgID, conversationID, event string, payload interface{})
	EmitToUser(ctx context.Context, orgID, userID, event string, payload interface{})
}

// Sink receives envelopes from a MultiEmitter.
type Sink interface {
	Name() string
	Publish(ctx context.Context, env *Envelope) error
}

// MultiEmitter hands every event to all sinks concurrently.
type MultiEmitter struct {
	origin string
	sinks  []Sink
}

// Ensure MultiEmitter implements Emitter
var _ Emitter = (*MultiEmitter)(nil)

// NewMultiEmitter creates an emitter. origin identifies this replica on
// relayed envelopes.
func NewMultiEmitter(origin string, sinks ...Sink) *MultiEmitter {
	return &MultiEmitter{origin: origin, sinks: sinks}
}

// AddSink registers another sink. It is not safe to call concurrently with Emit.
func (m *MultiEmitter) AddSink(s Sink) {
	m.sinks = append(m.sinks, s)
}

func (m *MultiEmitter) EmitToOrganization(ctx context.Context, orgID, event string, payload interface{}) {
	m.emit(ctx, orgID, Room(ScopeOrganization, orgID), event, payload)
}

func (m *MultiEmitter) EmitToConversation(ctx context.Context, orgID, conversationID, event string, payload interface{}) {
	m.emit(ctx, orgID, Room(ScopeConversation, conversationID), event, payload)
}

func (m *MultiEmitter) EmitToUser(ctx context.Context, orgID, userID, event string, payload interface{}) {
	m.emit(ctx, orgID, Room(ScopeUser, userID), event, payload)
}

func (m *MultiEmitter) emit(ctx context.Context, orgID, room, event string, payload interface{}) {
	log := logger.FromContext(ctx).With(zap.String("event", event), zap.String("room", room))

	env, err := m.envelope(orgID, room, event, payload)
	if err != nil {
		log.Error("Failed to encode realtime event", zap.Error(err))
		return
	}
	observer.IncRealtimeEvent(event, string(env.Scope()))

	iter.ForEach(m.sinks, func(s *Sink) {
		defer utils.RecoverWithLog(ctx, "realtime sink "+(*s).Name())
		if err := (*s).Publish(ctx, env); err != nil {
			log.Warn("Realtime sink failed", zap.String("sink", (*s).Name()), zap.Error(err))
		}
	})
}

func (m *MultiEmitter) envelope(orgID, room, event string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return &Envelope{
		ID:             uuid.NewString(),
		Event:          event,
		Room:           room,
		OrganizationID: orgID,
		Payload:        data,
		Origin:         m.origin,
		EmittedAt:      utils.Now(),
	}, nil
}
