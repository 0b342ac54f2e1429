package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	metrics "gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	rtmock "gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime/mock"
	storagemock "gitlab.com/timkado/api/daisi-wa-support-console/internal/storage/mock"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/tenant"
	wamock "gitlab.com/timkado/api/daisi-wa-support-console/internal/whatsapp/mock"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

func init() {
	metrics.InitMetrics(false)
}

// fixture bundles the mocks every use case is built from.
type fixture struct {
	orgs          *storagemock.OrganizationRepoMock
	contacts      *storagemock.ContactRepoMock
	conversations *storagemock.ConversationRepoMock
	messages      *storagemock.MessageRepoMock
	media         *storagemock.MediaRepoMock
	webhookLogs   *storagemock.WebhookLogRepoMock
	provider      *wamock.ClientMock
	emitter       *rtmock.EmitterMock
	logs          *observer.ObservedLogs
	now           time.Time
}

func newFixture() *fixture {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Log = zap.New(core).Named("test")

	return &fixture{
		orgs:          new(storagemock.OrganizationRepoMock),
		contacts:      new(storagemock.ContactRepoMock),
		conversations: new(storagemock.ConversationRepoMock),
		messages:      new(storagemock.MessageRepoMock),
		media:         new(storagemock.MediaRepoMock),
		webhookLogs:   new(storagemock.WebhookLogRepoMock),
		provider:      new(wamock.ClientMock),
		emitter:       new(rtmock.EmitterMock),
		logs:          logs,
		now:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) repos() Repositories {
	return Repositories{
		Organizations: f.orgs,
		Contacts:      f.contacts,
		Conversations: f.conversations,
		Messages:      f.messages,
		Media:         f.media,
		WebhookLogs:   f.webhookLogs,
	}
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) resolver() *Resolver {
	r := NewResolver(f.contacts, f.conversations)
	r.now = f.clock
	return r
}

func (f *fixture) ingestion() *IngestionService {
	s := NewIngestionService(f.resolver(), f.messages, f.provider, f.emitter)
	s.now = f.clock
	return s
}

func orgContext(org *model.Organization) context.Context {
	return tenant.WithOrganizationID(context.Background(), org.ID)
}
