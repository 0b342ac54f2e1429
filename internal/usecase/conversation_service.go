package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// ConversationService applies agent-driven changes to conversations.
type ConversationService struct {
	conversations storage.ConversationRepo
	emitter       realtime.Emitter
	now           func() time.Time
}

// NewConversationService creates a conversation service.
func NewConversationService(conversations storage.ConversationRepo, emitter realtime.Emitter) *ConversationService {
	return &ConversationService{conversations: conversations, emitter: emitter, now: utils.Now}
}

// UpdateStatus moves a conversation to status. Reopening a closed
// conversation while the contact already has another open one fails with
// ErrConflict.
func (s *ConversationService) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus) (*model.Conversation, error) {
	orgID, err := organizationFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown conversation status %q", apperrors.ErrValidation, status)
	}

	conv, err := s.conversations.UpdateStatus(ctx, id, status, s.now())
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, fmt.Errorf("%w: contact already has an open conversation", apperrors.ErrConflict)
		}
		return nil, s.notFoundOr(ctx, err, "update conversation status", id)
	}

	logger.FromContext(ctx).Info("Conversation status changed",
		zap.String("conversation_id", id),
		zap.String("status", string(status)),
	)
	s.announce(ctx, orgID, conv)
	return conv, nil
}

// Assign hands the conversation to assignee, or unassigns it when nil. The
// new assignee is notified on their personal channel.
func (s *ConversationService) Assign(ctx context.Context, id string, assignee *string) (*model.Conversation, error) {
	orgID, err := organizationFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if assignee != nil && *assignee == "" {
		assignee = nil
	}

	conv, err := s.conversations.Assign(ctx, id, assignee)
	if err != nil {
		return nil, s.notFoundOr(ctx, err, "assign conversation", id)
	}

	s.announce(ctx, orgID, conv)
	if assignee != nil {
		s.emitter.EmitToUser(ctx, orgID, *assignee, model.EventConversationAssigned, model.ConversationUpdatedPayload{Conversation: conv})
	}
	return conv, nil
}

// MarkAsRead clears the unread counter.
func (s *ConversationService) MarkAsRead(ctx context.Context, id string) (*model.Conversation, error) {
	orgID, err := organizationFromContext(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversations.ResetUnread(ctx, id)
	if err != nil {
		return nil, s.notFoundOr(ctx, err, "reset unread", id)
	}
	s.announce(ctx, orgID, conv)
	return conv, nil
}

func (s *ConversationService) announce(ctx context.Context, orgID string, conv *model.Conversation) {
	payload := model.ConversationUpdatedPayload{Conversation: conv}
	s.emitter.EmitToOrganization(ctx, orgID, model.EventConversationUpdated, payload)
	s.emitter.EmitToConversation(ctx, orgID, conv.ID, model.EventConversationUpdated, payload)
}

func (s *ConversationService) notFoundOr(ctx context.Context, err error, operation, id string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("%w: %s", apperrors.ErrConversationNotFound, id)
	}
	return handleRepositoryError(ctx, err, operation, id)
}
