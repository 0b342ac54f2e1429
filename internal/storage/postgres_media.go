package storage

import (
	"context"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// FindMediaByMessageID returns the attachment metadata of a message.
func (r *PostgresRepo) FindMediaByMessageID(ctx context.Context, messageID string) (*model.Media, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var media model.Media
	operation := func() error {
		return r.db.WithContext(ctx).Where("message_id = ? AND organization_id = ?", messageID, orgID).First(&media).Error
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "FindMediaByMessageID", operation)
	if err = finish(ctx, "find", "media", orgID, startTime, err, zap.String("message_id", messageID)); err != nil {
		return nil, err
	}
	return &media, nil
}
