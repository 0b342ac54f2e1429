package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

// StatusService reconciles delivery reports with stored outbound messages.
type StatusService struct {
	messages storage.MessageRepo
	emitter  realtime.Emitter
}

// NewStatusService creates a status reconciler.
func NewStatusService(messages storage.MessageRepo, emitter realtime.Emitter) *StatusService {
	return &StatusService{messages: messages, emitter: emitter}
}

// ApplyStatus moves the message identified by ev.Wamid forward. It returns
// nil for a wamid this service never stored. A report that would move the
// status backwards, or past FAILED, leaves the message untouched and emits
// nothing.
func (s *StatusService) ApplyStatus(ctx context.Context, orgID string, ev *webhook.StatusEvent) (*model.Message, error) {
	if ev == nil || ev.Wamid == "" {
		return nil, fmt.Errorf("%w: status without message id", apperrors.ErrValidation)
	}
	log := logger.FromContext(ctx)

	msg, applied, err := s.messages.ApplyStatus(ctx, storage.StatusUpdate{
		Wamid:        ev.Wamid,
		Status:       ev.Status,
		Timestamp:    ev.Timestamp,
		ErrorCode:    ev.ErrorCode,
		ErrorMessage: ev.ErrorMessage,
	})
	if err != nil {
		observer.IncStatusUpdate(orgID, string(ev.Status), "error")
		return nil, handleRepositoryError(ctx, err, "apply status", ev.Wamid)
	}
	if msg == nil {
		observer.IncStatusUpdate(orgID, string(ev.Status), "unknown_message")
		log.Debug("Status for unknown message ignored")
		return nil, nil
	}
	if !applied {
		observer.IncStatusUpdate(orgID, string(ev.Status), "ignored")
		log.Info("Out of order status ignored",
			zap.String("message_id", msg.ID),
			zap.String("current_status", string(msg.Status)),
		)
		return msg, nil
	}
	observer.IncStatusUpdate(orgID, string(ev.Status), "applied")

	s.emitter.EmitToOrganization(ctx, orgID, model.EventMessageStatus, model.MessageStatusPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Wamid:          ev.Wamid,
		Status:         msg.Status,
		Timestamp:      ev.Timestamp,
		ErrorCode:      msg.ErrorCode,
		ErrorMessage:   msg.ErrorMessage,
	})
	return msg, nil
}

// HandleEvent adapts ApplyStatus to the ingestion router.
func (s *StatusService) HandleEvent(ctx context.Context, org *model.Organization, event webhook.Event) error {
	_, err := s.ApplyStatus(ctx, org.ID, event.Status)
	return err
}
