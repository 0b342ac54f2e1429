package httpapi

import (
	"context"
	"net/http"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/usecase"
)

// Sender sends agent messages.
type Sender interface {
	Send(ctx context.Context, in usecase.SendInput) (*model.Message, error)
	SendMedia(ctx context.Context, in usecase.MediaInput) (*model.Message, error)
}

// ConversationManager applies agent actions to conversations.
type ConversationManager interface {
	UpdateStatus(ctx context.Context, id string, status model.ConversationStatus) (*model.Conversation, error)
	Assign(ctx context.Context, id string, assignee *string) (*model.Conversation, error)
	MarkAsRead(ctx context.Context, id string) (*model.Conversation, error)
}

// HistoryReader serves the inbox and conversation history.
type HistoryReader interface {
	ListConversations(ctx context.Context, filter storage.ConversationFilter) (*usecase.ConversationPage, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, filter storage.MessageFilter) (*usecase.MessagePage, error)
}

// MediaFetcher opens message attachments.
type MediaFetcher interface {
	Fetch(ctx context.Context, messageID string) (*usecase.MediaStream, error)
}

// RealtimeServer upgrades a request to a realtime connection.
type RealtimeServer interface {
	Serve(w http.ResponseWriter, r *http.Request, orgID, userID string) error
}

var (
	_ Sender              = (*usecase.SendService)(nil)
	_ ConversationManager = (*usecase.ConversationService)(nil)
	_ HistoryReader       = (*usecase.HistoryService)(nil)
	_ MediaFetcher        = (*usecase.MediaService)(nil)
	_ RealtimeServer      = (*realtime.Hub)(nil)
)
