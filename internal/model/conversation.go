package model

import "time"

// ConversationStatus is the agent-facing lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationOpen     ConversationStatus = "OPEN"
	ConversationPending  ConversationStatus = "PENDING"
	ConversationResolved ConversationStatus = "RESOLVED"
	ConversationClosed   ConversationStatus = "CLOSED"
)

// SessionWindow is how long free-form outbound messages stay allowed after
// the last inbound message.
const SessionWindow = 24 * time.Hour

// Valid reports whether s is one of the known statuses.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationOpen, ConversationPending, ConversationResolved, ConversationClosed:
		return true
	}
	return false
}

// Conversation is the unit of work for an agent. At most one conversation per
// (organization, contact) may be in a status other than CLOSED.
type Conversation struct {
	ID                 string             `json:"id" gorm:"column:id;primaryKey;type:text"`
	OrganizationID     string             `json:"organization_id" gorm:"column:organization_id;type:text;not null;index"`
	ContactID          string             `json:"contact_id" gorm:"column:contact_id;type:text;not null;index"`
	Status             ConversationStatus `json:"status" gorm:"column:status;type:text;not null"`
	AssignedTo         *string            `json:"assigned_to,omitempty" gorm:"column:assigned_to;type:text;index"`
	UnreadCount        int                `json:"unread_count" gorm:"column:unread_count;not null"`
	LastMessageAt      *time.Time         `json:"last_message_at,omitempty" gorm:"column:last_message_at;index"`
	LastMessagePreview string             `json:"last_message_preview,omitempty" gorm:"column:last_message_preview;type:text"`
	LastMessageType    MessageType        `json:"last_message_type,omitempty" gorm:"column:last_message_type;type:text"`
	WindowExpiresAt    *time.Time         `json:"window_expires_at,omitempty" gorm:"column:window_expires_at"`
	ResolvedAt         *time.Time         `json:"resolved_at,omitempty" gorm:"column:resolved_at"`
	ClosedAt           *time.Time         `json:"closed_at,omitempty" gorm:"column:closed_at"`
	CreatedAt          time.Time          `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	Contact *Contact `json:"contact,omitempty" gorm:"-"`
}

// TableName specifies the table name for GORM.
func (Conversation) TableName() string {
	return "conversations"
}

// WindowOpen reports whether free-form messages may be sent at now.
func (c *Conversation) WindowOpen(now time.Time) bool {
	return c.WindowExpiresAt != nil && now.Before(*c.WindowExpiresAt)
}

// AggregateUpdate is the set of conversation columns touched by message
// activity. Inbound activity also bumps unread and the session window.
type AggregateUpdate struct {
	ConversationID  string
	LastMessageAt   time.Time
	Preview         string
	Type            MessageType
	IncrementUnread bool
	WindowExpiresAt *time.Time
}
