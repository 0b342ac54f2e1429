package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []*Envelope
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, env)
	return s.err
}

func (s *recordingSink) envelopes() []*Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Envelope(nil), s.got...)
}

type panickingSink struct{}

func (panickingSink) Name() string                               { return "panics" }
func (panickingSink) Publish(context.Context, *Envelope) error { panic("sink exploded") }

func TestMultiEmitter_FansOutToEverySink(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := logger.WithLogger(context.Background(), zap.New(core))

	healthy := &recordingSink{name: "healthy"}
	failing := &recordingSink{name: "failing", err: errors.New("broker down")}
	emitter := NewMultiEmitter("replica-a", healthy, failing, panickingSink{})

	emitter.EmitToConversation(ctx, "org-1", "conv-9", "message:new", map[string]string{"id": "m1"})

	got := healthy.envelopes()
	require.Len(t, got, 1)
	env := got[0]
	assert.Equal(t, "message:new", env.Event)
	assert.Equal(t, "conversation:conv-9", env.Room)
	assert.Equal(t, ScopeConversation, env.Scope())
	assert.Equal(t, "org-1", env.OrganizationID)
	assert.Equal(t, "replica-a", env.Origin)
	assert.NotEmpty(t, env.ID)
	assert.JSONEq(t, `{"id":"m1"}`, string(env.Payload))

	require.Len(t, failing.envelopes(), 1)
	assert.Equal(t, 1, logs.FilterMessage("Realtime sink failed").Len())
}

func TestMultiEmitter_Rooms(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	emitter := NewMultiEmitter("r", sink)

	emitter.EmitToOrganization(context.Background(), "org-1", "conversation:updated", nil)
	emitter.EmitToUser(context.Background(), "org-1", "user-7", "message:status", nil)

	got := sink.envelopes()
	require.Len(t, got, 2)
	assert.Equal(t, "org:org-1", got[0].Room)
	assert.Equal(t, "user:user-7", got[1].Room)
}

func TestMultiEmitter_UnencodablePayloadIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := logger.WithLogger(context.Background(), zap.New(core))
	sink := &recordingSink{name: "rec"}

	NewMultiEmitter("r", sink).EmitToOrganization(ctx, "org-1", "message:new", json.RawMessage(`{broken`))

	assert.Empty(t, sink.envelopes())
	assert.Equal(t, 1, logs.FilterMessage("Failed to encode realtime event").Len())
}

func TestParseRoom(t *testing.T) {
	scope, id, ok := ParseRoom("conversation:abc")
	assert.True(t, ok)
	assert.Equal(t, ScopeConversation, scope)
	assert.Equal(t, "abc", id)

	for _, bad := range []string{"", "conversation:", "lobby:1", "org"} {
		_, _, ok := ParseRoom(bad)
		assert.False(t, ok, bad)
	}
}
