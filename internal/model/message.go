package model

import (
	"time"

	"gorm.io/datatypes"
)

// MessageType tags the shape of a message's content.
type MessageType string

const (
	MessageTypeText        MessageType = "TEXT"
	MessageTypeImage       MessageType = "IMAGE"
	MessageTypeVideo       MessageType = "VIDEO"
	MessageTypeAudio       MessageType = "AUDIO"
	MessageTypeDocument    MessageType = "DOCUMENT"
	MessageTypeSticker     MessageType = "STICKER"
	MessageTypeLocation    MessageType = "LOCATION"
	MessageTypeContacts    MessageType = "CONTACTS"
	MessageTypeInteractive MessageType = "INTERACTIVE"
	MessageTypeTemplate    MessageType = "TEMPLATE"
	MessageTypeReaction    MessageType = "REACTION"
	MessageTypeUnknown     MessageType = "UNKNOWN"
)

// IsMedia reports whether messages of this type carry a binary attachment.
func (t MessageType) IsMedia() bool {
	switch t {
	case MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeDocument, MessageTypeSticker:
		return true
	}
	return false
}

// Direction of a message relative to the organization.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "PENDING"
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusRead      MessageStatus = "READ"
	MessageStatusFailed    MessageStatus = "FAILED"
)

var statusRank = map[MessageStatus]int{
	MessageStatusPending:   0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
}

// CanAdvance reports whether a message in status from may move to status to.
// Statuses only move forward along PENDING < SENT < DELIVERED < READ. FAILED
// is terminal and reachable only before delivery.
func CanAdvance(from, to MessageStatus) bool {
	if from == MessageStatusFailed {
		return false
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return true
	}
	if to == MessageStatusFailed {
		return fromRank <= statusRank[MessageStatusSent]
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Message is immutable after creation except for status, wamid and the error fields.
type Message struct {
	ID              string         `json:"id" gorm:"column:id;primaryKey;type:text"`
	OrganizationID  string         `json:"organization_id" gorm:"column:organization_id;type:text;not null;index"`
	ConversationID  string         `json:"conversation_id" gorm:"column:conversation_id;type:text;not null;index:ix_messages_conversation_ts,priority:1"`
	Wamid           *string        `json:"wamid,omitempty" gorm:"column:wamid;type:text;uniqueIndex:ux_messages_wamid"`
	Direction       Direction      `json:"direction" gorm:"column:direction;type:text;not null"`
	Type            MessageType    `json:"type" gorm:"column:type;type:text;not null"`
	Status          MessageStatus  `json:"status" gorm:"column:status;type:text;not null"`
	Content         datatypes.JSON `json:"content" gorm:"column:content;type:jsonb"`
	ContextWamid    *string        `json:"context_wamid,omitempty" gorm:"column:context_wamid;type:text"`
	SentBy          *string        `json:"sent_by,omitempty" gorm:"column:sent_by;type:text"`
	Timestamp       time.Time      `json:"timestamp" gorm:"column:timestamp;not null;index:ix_messages_conversation_ts,priority:2"`
	StatusUpdatedAt *time.Time     `json:"status_updated_at,omitempty" gorm:"column:status_updated_at"`
	ErrorCode       *string        `json:"error_code,omitempty" gorm:"column:error_code;type:text"`
	ErrorMessage    *string        `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	CreatedAt       time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`

	Media *Media `json:"media,omitempty" gorm:"-"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "messages"
}

// WamidValue returns the provider message id or "" when not yet assigned.
func (m *Message) WamidValue() string {
	if m.Wamid == nil {
		return ""
	}
	return *m.Wamid
}

// DecodeContent unpacks the stored jsonb content into its typed variant.
func (m *Message) DecodeContent() (Content, error) {
	return DecodeContent(m.Type, m.Content)
}

// StringPtr returns nil for "" and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
