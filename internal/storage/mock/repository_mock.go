package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
)

// --- OrganizationRepo Mock ---

// OrganizationRepoMock mocks the OrganizationRepo interface
type OrganizationRepoMock struct {
	mock.Mock
}

func (m *OrganizationRepoMock) FindByID(ctx context.Context, id string) (*model.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Organization), args.Error(1)
}

func (m *OrganizationRepoMock) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Organization, error) {
	args := m.Called(ctx, phoneNumberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Organization), args.Error(1)
}

func (m *OrganizationRepoMock) FindByVerifyToken(ctx context.Context, token string) (*model.Organization, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Organization), args.Error(1)
}

// --- ContactRepo Mock ---

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

func (m *ContactRepoMock) FindOrCreate(ctx context.Context, c *model.Contact) (*model.Contact, bool, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Contact), args.Bool(1), args.Error(2)
}

func (m *ContactRepoMock) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

func (m *ContactRepoMock) UpdateName(ctx context.Context, id, name string) error {
	args := m.Called(ctx, id, name)
	return args.Error(0)
}

// --- ConversationRepo Mock ---

// ConversationRepoMock mocks the ConversationRepo interface
type ConversationRepoMock struct {
	mock.Mock
}

func (m *ConversationRepoMock) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) FindOpenByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) CreateOpen(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error) {
	args := m.Called(ctx, conv)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Conversation), args.Bool(1), args.Error(2)
}

func (m *ConversationRepoMock) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, at time.Time) (*model.Conversation, error) {
	args := m.Called(ctx, id, status, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) Assign(ctx context.Context, id string, assignee *string) (*model.Conversation, error) {
	args := m.Called(ctx, id, assignee)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) ResetUnread(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepoMock) List(ctx context.Context, filter storage.ConversationFilter) ([]model.Conversation, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.Conversation), args.Get(1).(int64), args.Error(2)
}

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

func (m *MessageRepoMock) SaveInbound(ctx context.Context, msg *model.Message, media *model.Media, agg model.AggregateUpdate) (*model.Message, bool, error) {
	args := m.Called(ctx, msg, media, agg)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Message), args.Bool(1), args.Error(2)
}

func (m *MessageRepoMock) CreatePending(ctx context.Context, msg *model.Message, media *model.Media) error {
	args := m.Called(ctx, msg, media)
	return args.Error(0)
}

func (m *MessageRepoMock) MarkSent(ctx context.Context, id, wamid string, at time.Time, agg model.AggregateUpdate) (*model.Message, error) {
	args := m.Called(ctx, id, wamid, at, agg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepoMock) MarkFailed(ctx context.Context, id, code, message string, at time.Time) (*model.Message, error) {
	args := m.Called(ctx, id, code, message, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepoMock) ApplyStatus(ctx context.Context, update storage.StatusUpdate) (*model.Message, bool, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Message), args.Bool(1), args.Error(2)
}

func (m *MessageRepoMock) FindByID(ctx context.Context, id string) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepoMock) FindByWamid(ctx context.Context, wamid string) (*model.Message, error) {
	args := m.Called(ctx, wamid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepoMock) ListByConversation(ctx context.Context, conversationID string, filter storage.MessageFilter) ([]model.Message, int64, error) {
	args := m.Called(ctx, conversationID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.Message), args.Get(1).(int64), args.Error(2)
}

// --- MediaRepo Mock ---

// MediaRepoMock mocks the MediaRepo interface
type MediaRepoMock struct {
	mock.Mock
}

func (m *MediaRepoMock) FindByMessageID(ctx context.Context, messageID string) (*model.Media, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Media), args.Error(1)
}

// --- WebhookLogRepo Mock ---

// WebhookLogRepoMock mocks the WebhookLogRepo interface
type WebhookLogRepoMock struct {
	mock.Mock
}

func (m *WebhookLogRepoMock) Append(ctx context.Context, entry *model.WebhookLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

var (
	_ storage.OrganizationRepo = (*OrganizationRepoMock)(nil)
	_ storage.ContactRepo      = (*ContactRepoMock)(nil)
	_ storage.ConversationRepo = (*ConversationRepoMock)(nil)
	_ storage.MessageRepo      = (*MessageRepoMock)(nil)
	_ storage.MediaRepo        = (*MediaRepoMock)(nil)
	_ storage.WebhookLogRepo   = (*WebhookLogRepoMock)(nil)
)
