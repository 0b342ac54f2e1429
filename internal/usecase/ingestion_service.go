package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// IngestionService stores inbound messages and notifies connected agents.
type IngestionService struct {
	resolver *Resolver
	messages storage.MessageRepo
	provider whatsappReader
	emitter  realtime.Emitter
	now      func() time.Time
}

// whatsappReader is the part of the provider client ingestion needs.
type whatsappReader interface {
	MarkAsRead(ctx context.Context, org *model.Organization, wamid string) error
}

// NewIngestionService creates the inbound message pipeline.
func NewIngestionService(resolver *Resolver, messages storage.MessageRepo, provider whatsappReader, emitter realtime.Emitter) *IngestionService {
	return &IngestionService{
		resolver: resolver,
		messages: messages,
		provider: provider,
		emitter:  emitter,
		now:      utils.Now,
	}
}

// IngestInbound stores in for org. Redelivery of a known wamid returns the
// stored message without touching the conversation or emitting anything.
// ctx must carry the organization.
func (s *IngestionService) IngestInbound(ctx context.Context, org *model.Organization, in *webhook.InboundMessage) (*model.Message, error) {
	if in == nil || in.Wamid == "" {
		return nil, fmt.Errorf("%w: inbound message without id", apperrors.ErrValidation)
	}
	if in.From == "" {
		return nil, fmt.Errorf("%w: inbound message %s without sender", apperrors.ErrValidation, in.Wamid)
	}
	log := logger.FromContext(ctx)
	now := s.now()

	// A known wamid must not reopen or create a conversation.
	existing, err := s.messages.FindByWamid(ctx, in.Wamid)
	switch {
	case err == nil:
		observer.IncMessageIngested(org.ID, string(in.Type), "duplicate")
		log.Info("Duplicate inbound message ignored", zap.String("message_id", existing.ID))
		return existing, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		observer.IncMessageIngested(org.ID, string(in.Type), "error")
		return nil, handleRepositoryError(ctx, err, "find inbound message", in.Wamid)
	}

	res, err := s.resolver.Resolve(ctx, org.ID, in.From, in.ProfileName)
	if err != nil {
		observer.IncMessageIngested(org.ID, string(in.Type), "error")
		return nil, err
	}

	content, err := model.EncodeContent(in.Content)
	if err != nil {
		observer.IncMessageIngested(org.ID, string(in.Type), "error")
		return nil, fmt.Errorf("%w: encode content: %v", apperrors.ErrValidation, err)
	}

	msg := &model.Message{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		ConversationID: res.Conversation.ID,
		Wamid:          model.StringPtr(in.Wamid),
		Direction:      model.DirectionInbound,
		Type:           in.Type,
		Status:         model.MessageStatusDelivered,
		Content:        content,
		ContextWamid:   model.StringPtr(in.ContextWamid),
		Timestamp:      in.Timestamp,
	}

	var media *model.Media
	if in.Media != nil {
		media = &model.Media{
			ID:             uuid.NewString(),
			OrganizationID: org.ID,
			MessageID:      msg.ID,
			MediaID:        in.Media.MediaID,
			Type:           in.MediaKind,
			MimeType:       in.Media.MimeType,
			SHA256:         in.Media.SHA256,
			Filename:       in.Media.Filename,
		}
	}

	window := now.Add(model.SessionWindow)
	agg := model.AggregateUpdate{
		ConversationID:  res.Conversation.ID,
		LastMessageAt:   in.Timestamp,
		Preview:         model.Preview(in.Content),
		Type:            in.Type,
		IncrementUnread: true,
		WindowExpiresAt: &window,
	}

	stored, created, err := s.messages.SaveInbound(ctx, msg, media, agg)
	if err != nil {
		observer.IncMessageIngested(org.ID, string(in.Type), "error")
		return nil, handleRepositoryError(ctx, err, "save inbound message", in.Wamid)
	}
	if !created {
		observer.IncMessageIngested(org.ID, string(in.Type), "duplicate")
		log.Info("Duplicate inbound message ignored", zap.String("message_id", stored.ID))
		return stored, nil
	}
	observer.IncMessageIngested(org.ID, string(in.Type), "created")

	s.emitter.EmitToOrganization(ctx, org.ID, model.EventMessageNew, model.MessageNewPayload{
		ConversationID: stored.ConversationID,
		Message:        stored,
	})

	if err := s.provider.MarkAsRead(ctx, org, in.Wamid); err != nil {
		log.Warn("Failed to mark inbound message as read", zap.Error(err))
	}

	log.Info("Inbound message ingested",
		zap.String("message_id", stored.ID),
		zap.String("conversation_id", stored.ConversationID),
		zap.Bool("conversation_created", res.ConversationCreated),
	)
	return stored, nil
}

// HandleEvent adapts IngestInbound to the ingestion router.
func (s *IngestionService) HandleEvent(ctx context.Context, org *model.Organization, event webhook.Event) error {
	_, err := s.IngestInbound(ctx, org, event.Message)
	return err
}
