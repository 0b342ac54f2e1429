//go:build integration

package integration_test

import (
	"time"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/jetstream"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

// RelaySuite runs two console replicas against one NATS server.
type RelaySuite struct {
	BaseIntegrationSuite
}

type replica struct {
	client  *jetstream.Client
	relay   *realtime.NATSRelay
	local   *recordingSink
	emitter *realtime.MultiEmitter
}

func (s *RelaySuite) newReplica(origin string) *replica {
	client, err := jetstream.NewClient(s.NATSURL, "it-"+origin)
	s.Require().NoError(err)
	s.T().Cleanup(client.Close)

	relay := realtime.NewNATSRelay(client, "it_console_events", "it.console", origin, logger.Log)
	s.Require().NoError(relay.Setup(s.Ctx))

	local := &recordingSink{name: "hub-" + origin}
	s.Require().NoError(relay.Subscribe(local))
	s.T().Cleanup(relay.Close)

	return &replica{
		client:  client,
		relay:   relay,
		local:   local,
		emitter: realtime.NewMultiEmitter(origin, local, relay),
	}
}

func (s *RelaySuite) TestEventReachesOtherReplicaOnce() {
	a := s.newReplica("replica-a")
	b := s.newReplica("replica-b")

	a.emitter.EmitToOrganization(s.Ctx, "org-1", model.EventMessageNew, map[string]string{"id": "msg-1"})

	s.Eventually(func() bool {
		return len(b.local.events(model.EventMessageNew)) == 1
	}, 5*time.Second, 50*time.Millisecond)

	got := b.local.events(model.EventMessageNew)[0]
	s.Equal("org:org-1", got.Room)
	s.Equal("org-1", got.OrganizationID)
	s.Equal("replica-a", got.Origin)
	s.JSONEq(`{"id":"msg-1"}`, string(got.Payload))

	// the emitting replica delivered locally once and ignored its own relay copy
	s.Never(func() bool {
		return len(a.local.events(model.EventMessageNew)) > 1
	}, 500*time.Millisecond, 50*time.Millisecond)
	s.True(a.client.Connected())
}
