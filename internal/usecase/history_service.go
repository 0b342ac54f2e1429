package usecase

import (
	"context"
	"errors"
	"fmt"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
)

// ConversationPage is one page of an inbox listing.
type ConversationPage struct {
	Data       []model.Conversation `json:"data"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"totalPages"`
}

// MessagePage is one page of a conversation's history in chronological order.
type MessagePage struct {
	Data    []model.Message `json:"data"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	Limit   int             `json:"limit"`
	HasMore bool            `json:"hasMore"`
}

// HistoryService serves the reads clients use to resync after an event or
// a reconnect.
type HistoryService struct {
	repos Repositories
}

// NewHistoryService creates the read side of the console.
func NewHistoryService(repos Repositories) *HistoryService {
	return &HistoryService{repos: repos}
}

// ListConversations returns the tenant's inbox, most recent activity first.
func (s *HistoryService) ListConversations(ctx context.Context, filter storage.ConversationFilter) (*ConversationPage, error) {
	if _, err := organizationFromContext(ctx); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown conversation status %q", apperrors.ErrValidation, filter.Status)
	}
	filter.Page = filter.Page.Normalize(storage.DefaultConversationPageSize, storage.MaxConversationPageSize)

	convs, total, err := s.repos.Conversations.List(ctx, filter)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "list conversations", "")
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	return &ConversationPage{
		Data:       convs,
		Total:      total,
		Page:       filter.Page.Page,
		Limit:      filter.Page.Limit,
		TotalPages: int((total + int64(filter.Page.Limit) - 1) / int64(filter.Page.Limit)),
	}, nil
}

// GetConversation loads one conversation with its contact.
func (s *HistoryService) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	if _, err := organizationFromContext(ctx); err != nil {
		return nil, err
	}
	conv, err := s.findConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	contact, err := s.repos.Contacts.FindByID(ctx, conv.ContactID)
	switch {
	case err == nil:
		conv.Contact = contact
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		return nil, handleRepositoryError(ctx, err, "find contact", conv.ContactID)
	}
	return conv, nil
}

// ListMessages returns a page of the conversation's history. Pages walk
// backwards from the newest message; each page is in chronological order.
func (s *HistoryService) ListMessages(ctx context.Context, conversationID string, filter storage.MessageFilter) (*MessagePage, error) {
	if _, err := organizationFromContext(ctx); err != nil {
		return nil, err
	}
	if _, err := s.findConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	filter.Page = filter.Page.Normalize(storage.DefaultMessagePageSize, storage.MaxMessagePageSize)

	msgs, total, err := s.repos.Messages.ListByConversation(ctx, conversationID, filter)
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "list messages", conversationID)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return &MessagePage{
		Data:    msgs,
		Total:   total,
		Page:    filter.Page.Page,
		Limit:   filter.Page.Limit,
		HasMore: int64(filter.Page.Offset()+len(msgs)) < total,
	}, nil
}

func (s *HistoryService) findConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.repos.Conversations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrConversationNotFound, id)
		}
		return nil, handleRepositoryError(ctx, err, "find conversation", id)
	}
	return conv, nil
}
