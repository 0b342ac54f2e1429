package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
)

// Every repository except OrganizationRepo and WebhookLogRepo scopes its
// queries to the organization carried by ctx (see tenant.WithOrganizationID).

// OrganizationRepo resolves tenants. Lookups run before a tenant is known.
type OrganizationRepo interface {
	FindByID(ctx context.Context, id string) (*model.Organization, error)
	FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Organization, error)
	FindByVerifyToken(ctx context.Context, token string) (*model.Organization, error)
}

// ContactRepo defines contact storage operations
type ContactRepo interface {
	// FindOrCreate returns the contact with the same external id, inserting
	// c when none exists. created reports whether c was inserted.
	FindOrCreate(ctx context.Context, c *model.Contact) (contact *model.Contact, created bool, err error)
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	UpdateName(ctx context.Context, id, name string) error
}

// ConversationRepo defines conversation storage operations
type ConversationRepo interface {
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	// FindOpenByContact returns the contact's conversation that is not CLOSED.
	FindOpenByContact(ctx context.Context, contactID string) (*model.Conversation, error)
	// CreateOpen inserts conv unless another non-closed conversation exists
	// for the same contact, in which case that one is returned.
	CreateOpen(ctx context.Context, conv *model.Conversation) (conversation *model.Conversation, created bool, err error)
	UpdateStatus(ctx context.Context, id string, status model.ConversationStatus, at time.Time) (*model.Conversation, error)
	Assign(ctx context.Context, id string, assignee *string) (*model.Conversation, error)
	ResetUnread(ctx context.Context, id string) (*model.Conversation, error)
	// List returns one page of the tenant's conversations, most recent
	// activity first, with their contacts attached, and the total count.
	List(ctx context.Context, filter ConversationFilter) ([]model.Conversation, int64, error)
}

// Page sizes applied when a listing asks for none or too many.
const (
	DefaultConversationPageSize = 20
	MaxConversationPageSize     = 100
	DefaultMessagePageSize      = 50
	MaxMessagePageSize          = 200
)

// Page selects a window of an ordered result. Page is 1-based.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps p to a valid page with at most max items.
func (p Page) Normalize(def, max int) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	return p
}

// Offset is the number of rows skipped before the page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// UnassignedFilter selects conversations without an assignee.
const UnassignedFilter = "unassigned"

// ConversationFilter narrows a conversation listing. Empty fields match all.
type ConversationFilter struct {
	Page
	Status     model.ConversationStatus
	AssignedTo string
	// Search matches the contact name (case-insensitive) or phone.
	Search string
}

// MessageFilter selects a page of a conversation's history. Before, when
// set, is a message id; only older messages are returned.
type MessageFilter struct {
	Page
	Before string
}

// MessageRepo defines message storage operations
type MessageRepo interface {
	// SaveInbound stores msg, its media and the conversation aggregates in one
	// transaction. A message whose wamid is already stored is returned as is
	// with created=false and nothing else is written.
	SaveInbound(ctx context.Context, msg *model.Message, media *model.Media, agg model.AggregateUpdate) (stored *model.Message, created bool, err error)
	// CreatePending stores an outbound message before it is handed to the provider.
	CreatePending(ctx context.Context, msg *model.Message, media *model.Media) error
	// MarkSent records the provider id and updates the conversation aggregates.
	MarkSent(ctx context.Context, id, wamid string, at time.Time, agg model.AggregateUpdate) (*model.Message, error)
	MarkFailed(ctx context.Context, id, code, message string, at time.Time) (*model.Message, error)
	// ApplyStatus moves the message identified by wamid forward. An unknown
	// wamid yields (nil, false, nil); a stale or backward transition yields
	// (msg, false, nil).
	ApplyStatus(ctx context.Context, update StatusUpdate) (msg *model.Message, applied bool, err error)
	FindByID(ctx context.Context, id string) (*model.Message, error)
	// FindByWamid returns the message carrying the provider id, or ErrNotFound.
	FindByWamid(ctx context.Context, wamid string) (*model.Message, error)
	// ListByConversation returns one page of history, newest first, with
	// media attached, and the total count matching filter.
	ListByConversation(ctx context.Context, conversationID string, filter MessageFilter) ([]model.Message, int64, error)
}

// StatusUpdate is a delivery report for one outbound message.
type StatusUpdate struct {
	Wamid        string
	Status       model.MessageStatus
	Timestamp    time.Time
	ErrorCode    *string
	ErrorMessage *string
}

// MediaRepo defines media storage operations
type MediaRepo interface {
	FindByMessageID(ctx context.Context, messageID string) (*model.Media, error)
}

// WebhookLogRepo stores the audit copy of received webhook entries.
type WebhookLogRepo interface {
	Append(ctx context.Context, entry *model.WebhookLog) error
}
