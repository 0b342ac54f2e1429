package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

func testContext(t *testing.T) context.Context {
	return logger.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func TestRouter_Register(t *testing.T) {
	router := NewRouter()
	router.Register(webhook.KindMessage, func(context.Context, *model.Organization, webhook.Event) error { return nil })

	assert.NotNil(t, router.handlers[webhook.KindMessage], "Handler should be registered")
	assert.Nil(t, router.handlers[webhook.KindStatus])
}

func TestRouter_Route_ExactMatch(t *testing.T) {
	router := NewRouter()
	org := model.NewOrganization()

	var gotOrg string
	var gotEvent webhook.Event
	router.Register(webhook.KindMessage, func(ctx context.Context, o *model.Organization, ev webhook.Event) error {
		gotOrg = tenant.MustFromContext(ctx)
		gotEvent = ev
		return nil
	})
	router.Register(webhook.KindStatus, func(context.Context, *model.Organization, webhook.Event) error {
		t.Fatal("status handler must not run for a message event")
		return nil
	})

	ev := webhook.Event{Kind: webhook.KindMessage, Message: &webhook.InboundMessage{Wamid: "wamid.1", Type: model.MessageTypeText}}
	require.NoError(t, router.Route(testContext(t), org, ev))

	assert.Equal(t, org.ID, gotOrg)
	assert.Equal(t, "wamid.1", gotEvent.Message.Wamid)
}

func TestRouter_Route_PropagatesHandlerError(t *testing.T) {
	router := NewRouter()
	boom := errors.New("boom")
	router.Register(webhook.KindStatus, func(context.Context, *model.Organization, webhook.Event) error { return boom })

	err := router.Route(testContext(t), model.NewOrganization(), webhook.Event{Kind: webhook.KindStatus, Status: &webhook.StatusEvent{Wamid: "w"}})
	assert.ErrorIs(t, err, boom)
}

func TestRouter_Route_Default(t *testing.T) {
	router := NewRouter()
	called := false
	router.RegisterDefault(func(context.Context, *model.Organization, webhook.Event) error {
		called = true
		return nil
	})

	require.NoError(t, router.Route(testContext(t), model.NewOrganization(), webhook.Event{Kind: "reaction_sync"}))
	assert.True(t, called)
}

func TestRouter_Route_NoHandler(t *testing.T) {
	router := NewRouter()
	assert.NoError(t, router.Route(testContext(t), model.NewOrganization(), webhook.Event{Kind: webhook.KindMessage}))
}
