package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
)

// OrganizationRepoAdapter adapts the PostgresRepo to the OrganizationRepo interface
type OrganizationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewOrganizationRepoAdapter creates a new organization repository adapter
func NewOrganizationRepoAdapter(postgres *PostgresRepo) OrganizationRepo {
	return &OrganizationRepoAdapter{postgres: postgres}
}

func (a *OrganizationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Organization, error) {
	return a.postgres.FindOrganizationByID(ctx, id)
}

func (a *OrganizationRepoAdapter) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Organization, error) {
	return a.postgres.FindOrganizationByPhoneNumberID(ctx, phoneNumberID)
}

func (a *OrganizationRepoAdapter) FindByVerifyToken(ctx context.Context, token string) (*model.Organization, error) {
	return a.postgres.FindOrganizationByVerifyToken(ctx, token)
}

// ContactRepoAdapter adapts the PostgresRepo to the ContactRepo interface
type ContactRepoAdapter struct {
	postgres *PostgresRepo
}

// NewContactRepoAdapter creates a new contact repository adapter
func NewContactRepoAdapter(postgres *PostgresRepo) ContactRepo {
	return &ContactRepoAdapter{postgres: postgres}
}

func (a *ContactRepoAdapter) FindOrCreate(ctx context.Context, c *model.Contact) (*model.Contact, bool, error) {
	return a.postgres.FindOrCreateContact(ctx, c)
}

func (a *ContactRepoAdapter) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	return a.postgres.FindContactByID(ctx, id)
}

func (a *ContactRepoAdapter) UpdateName(ctx context.Context, id, name string) error {
	return a.postgres.UpdateContactName(ctx, id, name)
}

// ConversationRepoAdapter adapts the PostgresRepo to the ConversationRepo interface
type ConversationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewConversationRepoAdapter creates a new conversation repository adapter
func NewConversationRepoAdapter(postgres *PostgresRepo) ConversationRepo {
	return &ConversationRepoAdapter{postgres: postgres}
}

func (a *ConversationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.FindConversationByID(ctx, id)
}

func (a *ConversationRepoAdapter) FindOpenByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	return a.postgres.FindOpenConversationByContact(ctx, contactID)
}

func (a *ConversationRepoAdapter) CreateOpen(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error) {
	return a.postgres.CreateOpenConversation(ctx, conv)
}

func (a *ConversationRepoAdapter) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, at time.Time) (*model.Conversation, error) {
	return a.postgres.UpdateConversationStatus(ctx, id, status, at)
}

func (a *ConversationRepoAdapter) Assign(ctx context.Context, id string, assignee *string) (*model.Conversation, error) {
	return a.postgres.AssignConversation(ctx, id, assignee)
}

func (a *ConversationRepoAdapter) List(ctx context.Context, filter ConversationFilter) ([]model.Conversation, int64, error) {
	return a.postgres.ListConversations(ctx, filter)
}

func (a *ConversationRepoAdapter) ResetUnread(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.ResetConversationUnread(ctx, id)
}

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

func (a *MessageRepoAdapter) SaveInbound(ctx context.Context, msg *model.Message, media *model.Media, agg model.AggregateUpdate) (*model.Message, bool, error) {
	return a.postgres.SaveInboundMessage(ctx, msg, media, agg)
}

func (a *MessageRepoAdapter) CreatePending(ctx context.Context, msg *model.Message, media *model.Media) error {
	return a.postgres.CreatePendingMessage(ctx, msg, media)
}

func (a *MessageRepoAdapter) MarkSent(ctx context.Context, id, wamid string, at time.Time, agg model.AggregateUpdate) (*model.Message, error) {
	return a.postgres.MarkMessageSent(ctx, id, wamid, at, agg)
}

func (a *MessageRepoAdapter) MarkFailed(ctx context.Context, id, code, message string, at time.Time) (*model.Message, error) {
	return a.postgres.MarkMessageFailed(ctx, id, code, message, at)
}

func (a *MessageRepoAdapter) ApplyStatus(ctx context.Context, update StatusUpdate) (*model.Message, bool, error) {
	return a.postgres.ApplyMessageStatus(ctx, update)
}

func (a *MessageRepoAdapter) FindByWamid(ctx context.Context, wamid string) (*model.Message, error) {
	return a.postgres.FindMessageByWamid(ctx, wamid)
}

func (a *MessageRepoAdapter) ListByConversation(ctx context.Context, conversationID string, filter MessageFilter) ([]model.Message, int64, error) {
	return a.postgres.ListMessagesByConversation(ctx, conversationID, filter)
}

func (a *MessageRepoAdapter) FindByID(ctx context.Context, id string) (*model.Message, error) {
	return a.postgres.FindMessageByID(ctx, id)
}

// MediaRepoAdapter adapts the PostgresRepo to the MediaRepo interface
type MediaRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMediaRepoAdapter creates a new media repository adapter
func NewMediaRepoAdapter(postgres *PostgresRepo) MediaRepo {
	return &MediaRepoAdapter{postgres: postgres}
}

func (a *MediaRepoAdapter) FindByMessageID(ctx context.Context, messageID string) (*model.Media, error) {
	return a.postgres.FindMediaByMessageID(ctx, messageID)
}

// WebhookLogRepoAdapter adapts the PostgresRepo to the WebhookLogRepo interface
type WebhookLogRepoAdapter struct {
	postgres *PostgresRepo
}

// NewWebhookLogRepoAdapter creates a new webhook log repository adapter
func NewWebhookLogRepoAdapter(postgres *PostgresRepo) WebhookLogRepo {
	return &WebhookLogRepoAdapter{postgres: postgres}
}

func (a *WebhookLogRepoAdapter) Append(ctx context.Context, entry *model.WebhookLog) error {
	return a.postgres.AppendWebhookLog(ctx, entry)
}
