//go:build integration

package integration_test

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/cache"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/ingestion"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/usecase"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/whatsapp"
)

// PipelineSuite drives the webhook processor and the agent use cases
// against a real database and a fake Cloud API.
type PipelineSuite struct {
	BaseIntegrationSuite

	graph         *fakeGraph
	sink          *recordingSink
	repos         usecase.Repositories
	processor     *usecase.WebhookProcessor
	sender        *usecase.SendService
	conversations *usecase.ConversationService
	org           *model.Organization
}

func (s *PipelineSuite) SetupSuite() {
	s.BaseIntegrationSuite.SetupSuite()
	s.graph = newFakeGraph()
}

func (s *PipelineSuite) TearDownSuite() {
	if s.graph != nil {
		s.graph.server.Close()
	}
	s.BaseIntegrationSuite.TearDownSuite()
}

func (s *PipelineSuite) SetupTest() {
	s.BaseIntegrationSuite.SetupTest()

	s.sink = &recordingSink{name: "recorder"}
	emitter := realtime.NewMultiEmitter("it", s.sink)
	provider := whatsapp.NewClient(whatsapp.Options{BaseURL: s.graph.server.URL, APIVersion: "v18.0", Timeout: 5 * time.Second})

	s.repos = usecase.Repositories{
		Organizations: cache.NewOrganizationCache(storage.NewOrganizationRepoAdapter(s.Repo), time.Minute),
		Contacts:      storage.NewContactRepoAdapter(s.Repo),
		Conversations: storage.NewConversationRepoAdapter(s.Repo),
		Messages:      storage.NewMessageRepoAdapter(s.Repo),
		Media:         storage.NewMediaRepoAdapter(s.Repo),
		WebhookLogs:   storage.NewWebhookLogRepoAdapter(s.Repo),
	}
	resolver := usecase.NewResolver(s.repos.Contacts, s.repos.Conversations)
	s.processor = usecase.NewWebhookProcessor(
		s.repos.Organizations,
		s.repos.WebhookLogs,
		ingestion.NewRouter(),
		usecase.NewIngestionService(resolver, s.repos.Messages, provider, emitter),
		usecase.NewStatusService(s.repos.Messages, emitter),
	)
	s.processor.Setup()
	s.sender = usecase.NewSendService(s.repos, provider, emitter, usecase.SendOptions{MediaDir: s.T().TempDir()})
	s.conversations = usecase.NewConversationService(s.repos.Conversations, emitter)

	s.org = s.createOrganization("pn-100")
}

func (s *PipelineSuite) createOrganization(phoneNumberID string) *model.Organization {
	org := model.NewOrganization(func(o *model.Organization) { o.PhoneNumberID = phoneNumberID })
	s.Require().NoError(s.DB.Create(org).Error)
	return org
}

func (s *PipelineSuite) conversationsOf(orgID string) []model.Conversation {
	var out []model.Conversation
	s.Require().NoError(s.DB.Where("organization_id = ?", orgID).Order("created_at").Find(&out).Error)
	return out
}

func (s *PipelineSuite) countRows(table string) int64 {
	var n int64
	s.Require().NoError(s.DB.Table(table).Count(&n).Error)
	return n
}

func (s *PipelineSuite) TestInboundTextCreatesContactAndConversation() {
	now := time.Now()
	s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-100", "wamid.in-1", "628111", "Budi", "halo", now)))

	var contact model.Contact
	s.Require().NoError(s.DB.Where("organization_id = ? AND external_id = ?", s.org.ID, "628111").First(&contact).Error)
	s.Equal("Budi", contact.Name)

	convs := s.conversationsOf(s.org.ID)
	s.Require().Len(convs, 1)
	s.Equal(model.ConversationOpen, convs[0].Status)
	s.Equal(1, convs[0].UnreadCount)
	s.Equal("halo", convs[0].LastMessagePreview)
	s.Require().NotNil(convs[0].WindowExpiresAt)
	s.True(convs[0].WindowExpiresAt.After(now.Add(23 * time.Hour)))

	var msg model.Message
	s.Require().NoError(s.DB.Where("wamid = ?", "wamid.in-1").First(&msg).Error)
	s.Equal(model.DirectionInbound, msg.Direction)
	s.Equal(model.MessageStatusDelivered, msg.Status)

	s.EqualValues(1, s.countRows("webhook_logs"))
	s.Len(s.sink.events(model.EventMessageNew), 1)
	s.EqualValues(1, s.graph.reads.Load())
}

func (s *PipelineSuite) TestRetriedDeliveryStoresOnce() {
	body := textPayload("pn-100", "wamid.in-dup", "628111", "Budi", "halo", time.Now())
	s.Require().NoError(s.processor.Process(s.Ctx, body))
	s.Require().NoError(s.processor.Process(s.Ctx, body))

	s.EqualValues(1, s.countRows("messages"))
	convs := s.conversationsOf(s.org.ID)
	s.Require().Len(convs, 1)
	s.Equal(1, convs[0].UnreadCount)
	s.EqualValues(2, s.countRows("webhook_logs"))
	s.Len(s.sink.events(model.EventMessageNew), 1)
}

func (s *PipelineSuite) TestFollowUpReusesConversation() {
	now := time.Now()
	s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-100", "wamid.a", "628111", "Budi", "one", now)))
	s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-100", "wamid.b", "628111", "Budi S", "two", now.Add(time.Second))))

	convs := s.conversationsOf(s.org.ID)
	s.Require().Len(convs, 1)
	s.Equal(2, convs[0].UnreadCount)
	s.Equal("two", convs[0].LastMessagePreview)

	var contact model.Contact
	s.Require().NoError(s.DB.Where("organization_id = ?", s.org.ID).First(&contact).Error)
	s.Equal("Budi S", contact.Name)
}

func (s *PipelineSuite) TestOutboundStatusOnlyMovesForward() {
	s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-100", "wamid.in-2", "628111", "Budi", "halo", time.Now())))
	conv := s.conversationsOf(s.org.ID)[0]

	ctx := tenant.WithOrganizationID(s.Ctx, s.org.ID)
	sent, err := s.sender.Send(ctx, usecase.SendInput{
		ConversationID: conv.ID,
		Content:        model.TextContent{Body: "hi, how can we help?"},
		UserID:         "agent-1",
	})
	s.Require().NoError(err)
	s.Equal(model.MessageStatusSent, sent.Status)
	s.Require().NotNil(sent.Wamid)
	wamid := *sent.Wamid

	statusAt := time.Now()
	s.Require().NoError(s.processor.Process(s.Ctx, statusPayload("pn-100", wamid, "delivered", statusAt)))
	s.Require().NoError(s.processor.Process(s.Ctx, statusPayload("pn-100", wamid, "sent", statusAt.Add(time.Second))))

	var stored model.Message
	s.Require().NoError(s.DB.Where("id = ?", sent.ID).First(&stored).Error)
	s.Equal(model.MessageStatusDelivered, stored.Status)

	s.Require().NoError(s.processor.Process(s.Ctx, statusPayload("pn-100", wamid, "read", statusAt.Add(2*time.Second))))
	s.Require().NoError(s.DB.Where("id = ?", sent.ID).First(&stored).Error)
	s.Equal(model.MessageStatusRead, stored.Status)

	s.Len(s.sink.events(model.EventMessageStatus), 2)

	// outbound messages never count as unread
	convs := s.conversationsOf(s.org.ID)
	s.Equal(1, convs[0].UnreadCount)
	s.Equal("hi, how can we help?", convs[0].LastMessagePreview)
}

func (s *PipelineSuite) TestUnknownPhoneNumberIsDropped() {
	s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-unknown", "wamid.x", "628111", "Budi", "halo", time.Now())))

	s.EqualValues(0, s.countRows("messages"))
	var logs []model.WebhookLog
	s.Require().NoError(s.DB.Find(&logs).Error)
	s.Require().Len(logs, 1)
	s.Nil(logs[0].OrganizationID)
	s.Zero(s.sink.count())
}

func (s *PipelineSuite) TestTenantsAreIsolated() {
	other := s.createOrganization("pn-200")
	now := time.Now()
	s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-100", "wamid.t1", "628111", "Budi", "to org one", now)))
	s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-200", "wamid.t2", "628111", "Budi", "to org two", now)))

	first := s.conversationsOf(s.org.ID)
	second := s.conversationsOf(other.ID)
	s.Require().Len(first, 1)
	s.Require().Len(second, 1)
	s.NotEqual(first[0].ContactID, second[0].ContactID)

	_, err := s.repos.Conversations.FindByID(tenant.WithOrganizationID(s.Ctx, other.ID), first[0].ID)
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *PipelineSuite) TestReopenConflictsWithNewerConversation() {
	s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-100", "wamid.r1", "628111", "Budi", "first", time.Now())))
	first := s.conversationsOf(s.org.ID)[0]

	ctx := tenant.WithOrganizationID(s.Ctx, s.org.ID)
	closed, err := s.conversations.UpdateStatus(ctx, first.ID, model.ConversationClosed)
	s.Require().NoError(err)
	s.NotNil(closed.ClosedAt)

	s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-100", "wamid.r2", "628111", "Budi", "again", time.Now())))
	s.Require().Len(s.conversationsOf(s.org.ID), 2)

	_, err = s.conversations.UpdateStatus(ctx, first.ID, model.ConversationOpen)
	s.ErrorIs(err, apperrors.ErrConflict)
}

func (s *PipelineSuite) openConversationsOf(orgID, contactID string) int64 {
	var n int64
	s.Require().NoError(s.DB.Model(&model.Conversation{}).
		Where("organization_id = ? AND contact_id = ? AND status <> ?", orgID, contactID, model.ConversationClosed).
		Count(&n).Error)
	return n
}

func (s *PipelineSuite) TestConcurrentFirstMessagesShareOneConversation() {
	const senders = 12
	now := time.Now()

	var g errgroup.Group
	for i := 0; i < senders; i++ {
		body := textPayload("pn-100", fmt.Sprintf("wamid.burst-%d", i), "628999", "Sari", fmt.Sprintf("msg %d", i), now.Add(time.Duration(i)*time.Millisecond))
		g.Go(func() error { return s.processor.Process(s.Ctx, body) })
	}
	s.Require().NoError(g.Wait())

	var contacts []model.Contact
	s.Require().NoError(s.DB.Where("organization_id = ? AND external_id = ?", s.org.ID, "628999").Find(&contacts).Error)
	s.Require().Len(contacts, 1)

	s.EqualValues(1, s.openConversationsOf(s.org.ID, contacts[0].ID))
	convs := s.conversationsOf(s.org.ID)
	s.Require().Len(convs, 1)
	s.Equal(senders, convs[0].UnreadCount)
	s.EqualValues(senders, s.countRows("messages"))

	var stray int64
	s.Require().NoError(s.DB.Model(&model.Message{}).Where("conversation_id <> ?", convs[0].ID).Count(&stray).Error)
	s.Zero(stray)
}

// Repeated inserts run the conflict clause past the point where Postgres
// switches a prepared statement to a generic plan.
func (s *PipelineSuite) TestManyContactsEachGetOneConversation() {
	const contacts = 10
	now := time.Now()
	for i := 0; i < contacts; i++ {
		from := fmt.Sprintf("62800%02d", i)
		s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-100", fmt.Sprintf("wamid.many-%d", i), from, "Contact", "first", now)))
		s.Require().NoError(s.processor.Process(s.Ctx, textPayload("pn-100", fmt.Sprintf("wamid.many-%d-b", i), from, "Contact", "second", now.Add(time.Second))))
	}

	convs := s.conversationsOf(s.org.ID)
	s.Require().Len(convs, contacts)
	seen := make(map[string]bool, contacts)
	for _, c := range convs {
		s.False(seen[c.ContactID], "contact %s has two conversations", c.ContactID)
		seen[c.ContactID] = true
		s.Equal(model.ConversationOpen, c.Status)
		s.Equal(2, c.UnreadCount)
		s.EqualValues(1, s.openConversationsOf(s.org.ID, c.ContactID))
	}
}

func (s *PipelineSuite) TestRedeliveryAfterCloseDoesNotReopen() {
	body := textPayload("pn-100", "wamid.late", "628111", "Budi", "halo", time.Now())
	s.Require().NoError(s.processor.Process(s.Ctx, body))
	first := s.conversationsOf(s.org.ID)[0]

	ctx := tenant.WithOrganizationID(s.Ctx, s.org.ID)
	_, err := s.conversations.UpdateStatus(ctx, first.ID, model.ConversationClosed)
	s.Require().NoError(err)

	s.Require().NoError(s.processor.Process(s.Ctx, body))

	convs := s.conversationsOf(s.org.ID)
	s.Require().Len(convs, 1)
	s.Equal(model.ConversationClosed, convs[0].Status)
	s.EqualValues(1, s.countRows("messages"))
}
