package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

// Repositories groups the stores the use cases read and write.
type Repositories struct {
	Organizations storage.OrganizationRepo
	Contacts      storage.ContactRepo
	Conversations storage.ConversationRepo
	Messages      storage.MessageRepo
	Media         storage.MediaRepo
	WebhookLogs   storage.WebhookLogRepo
}

// organizationFromContext returns the tenant id a REST caller is scoped to.
func organizationFromContext(ctx context.Context) (string, error) {
	orgID, err := tenant.FromContext(ctx)
	if err != nil || orgID == "" {
		return "", fmt.Errorf("%w: organization missing from context", apperrors.ErrUnauthorized)
	}
	return orgID, nil
}

// handleRepositoryError logs a repository failure at a level matching its
// kind and wraps it with the operation name. Kinds are preserved so callers
// and the HTTP layer can still match them with errors.Is.
func handleRepositoryError(ctx context.Context, err error, operation, id string) error {
	if err == nil {
		return nil
	}
	log := logger.FromContext(ctx)
	fields := []zap.Field{zap.String("operation", operation), zap.Error(err)}
	if id != "" {
		fields = append(fields, zap.String("id", id))
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		log.Debug("Repository operation failed: Not found", fields...)
	case errors.Is(err, apperrors.ErrDuplicate), errors.Is(err, apperrors.ErrConflict):
		log.Warn("Repository operation failed: Conflict", fields...)
	case errors.Is(err, apperrors.ErrBadRequest), errors.Is(err, apperrors.ErrValidation):
		log.Warn("Repository operation failed: Bad request", fields...)
	case errors.Is(err, apperrors.ErrTimeout):
		log.Warn("Repository operation failed: Timeout", fields...)
	default:
		log.Error("Repository operation failed", fields...)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
