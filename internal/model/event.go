package model

import "time"

// Realtime event names.
const (
	EventMessageNew           = "message:new"
	EventMessageStatus        = "message:status"
	EventConversationUpdated  = "conversation:updated"
	EventConversationAssigned = "conversation:assigned"
)

// MessageNewPayload is emitted once a message and its conversation
// aggregates are committed.
type MessageNewPayload struct {
	ConversationID string   `json:"conversationId"`
	Message        *Message `json:"message"`
}

// MessageStatusPayload is emitted after a delivery status was applied.
type MessageStatusPayload struct {
	ConversationID string        `json:"conversationId"`
	MessageID      string        `json:"messageId"`
	Wamid          string        `json:"wamid"`
	Status         MessageStatus `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
	ErrorCode      *string       `json:"errorCode,omitempty"`
	ErrorMessage   *string       `json:"errorMessage,omitempty"`
}

// ConversationUpdatedPayload is emitted after an agent-driven change.
type ConversationUpdatedPayload struct {
	Conversation *Conversation `json:"conversation"`
}
