package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// --- Message Repository Methods ---

// SaveInboundMessage inserts msg keyed on its wamid. A redelivered wamid hits
// ON CONFLICT DO NOTHING and the stored row comes back with created=false;
// media and aggregates are only written for the first delivery.
func (r *PostgresRepo) SaveInboundMessage(ctx context.Context, msg *model.Message, media *model.Media, agg model.AggregateUpdate) (*model.Message, bool, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, false, err
	}
	if msg.OrganizationID != orgID {
		return nil, false, fmt.Errorf("%w: message organization %s does not match tenant %s", apperrors.ErrBadRequest, msg.OrganizationID, orgID)
	}
	if msg.Wamid == nil || *msg.Wamid == "" {
		return nil, false, fmt.Errorf("%w: inbound message without wamid", apperrors.ErrBadRequest)
	}

	var (
		stored  model.Message
		created bool
	)
	operation := func() error {
		created = false
		return r.inTx(ctx, func(tx *gorm.DB) error {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "wamid"}},
				DoNothing: true,
			}).Create(msg)
			if res.Error != nil {
				return res.Error
			}

			if res.RowsAffected == 0 {
				if err := tx.Where("wamid = ? AND organization_id = ?", *msg.Wamid, orgID).First(&stored).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return backoff.Permanent(fmt.Errorf("%w: wamid %s belongs to another organization", apperrors.ErrConflict, *msg.Wamid))
					}
					return err
				}
				return nil
			}

			if media != nil {
				media.MessageID = msg.ID
				media.OrganizationID = orgID
				if err := tx.Create(media).Error; err != nil {
					return err
				}
			}
			if err := applyAggregate(tx, orgID, agg); err != nil {
				return err
			}
			stored = *msg
			created = true
			return nil
		})
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "SaveInboundMessage", operation)
	if err = finish(ctx, "save_inbound", "message", orgID, startTime, err, zap.String("wamid", *msg.Wamid)); err != nil {
		return nil, false, err
	}
	if created {
		stored.Media = media
	}
	return &stored, created, nil
}

// CreatePendingMessage stores an outbound message before the provider call.
func (r *PostgresRepo) CreatePendingMessage(ctx context.Context, msg *model.Message, media *model.Media) error {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return err
	}
	if msg.OrganizationID != orgID {
		return fmt.Errorf("%w: message organization %s does not match tenant %s", apperrors.ErrBadRequest, msg.OrganizationID, orgID)
	}

	operation := func() error {
		return r.inTx(ctx, func(tx *gorm.DB) error {
			if err := tx.Create(msg).Error; err != nil {
				return err
			}
			if media == nil {
				return nil
			}
			media.MessageID = msg.ID
			media.OrganizationID = orgID
			return tx.Create(media).Error
		})
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "CreatePendingMessage", operation)
	if err = finish(ctx, "create", "message", orgID, startTime, err, zap.String("message_id", msg.ID)); err != nil {
		return err
	}
	msg.Media = media
	return nil
}

// MarkMessageSent records the wamid of an accepted outbound message and bumps
// the conversation aggregates in the same transaction.
func (r *PostgresRepo) MarkMessageSent(ctx context.Context, id, wamid string, at time.Time, agg model.AggregateUpdate) (*model.Message, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var msg model.Message
	operation := func() error {
		return r.inTx(ctx, func(tx *gorm.DB) error {
			res := tx.Model(&model.Message{}).
				Where("id = ? AND organization_id = ?", id, orgID).
				Updates(map[string]interface{}{
					"wamid":             wamid,
					"status":            model.MessageStatusSent,
					"status_updated_at": at,
					"updated_at":        utils.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return backoff.Permanent(gorm.ErrRecordNotFound)
			}
			if err := applyAggregate(tx, orgID, agg); err != nil {
				return err
			}
			return tx.Where("id = ? AND organization_id = ?", id, orgID).First(&msg).Error
		})
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "MarkMessageSent", operation)
	if err = finish(ctx, "mark_sent", "message", orgID, startTime, err, zap.String("message_id", id), zap.String("wamid", wamid)); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkMessageFailed records a rejected send.
func (r *PostgresRepo) MarkMessageFailed(ctx context.Context, id, code, message string, at time.Time) (*model.Message, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var msg model.Message
	operation := func() error {
		db := r.db.WithContext(ctx)
		res := db.Model(&model.Message{}).
			Where("id = ? AND organization_id = ?", id, orgID).
			Updates(map[string]interface{}{
				"status":            model.MessageStatusFailed,
				"error_code":        code,
				"error_message":     message,
				"status_updated_at": at,
				"updated_at":        utils.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return backoff.Permanent(gorm.ErrRecordNotFound)
		}
		return db.Where("id = ? AND organization_id = ?", id, orgID).First(&msg).Error
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "MarkMessageFailed", operation)
	if err = finish(ctx, "mark_failed", "message", orgID, startTime, err, zap.String("message_id", id)); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ApplyMessageStatus locks the message with the given wamid and advances its
// status when model.CanAdvance allows it.
func (r *PostgresRepo) ApplyMessageStatus(ctx context.Context, update StatusUpdate) (*model.Message, bool, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, false, err
	}

	var (
		msg     model.Message
		found   bool
		applied bool
	)
	operation := func() error {
		found, applied = false, false
		return r.inTx(ctx, func(tx *gorm.DB) error {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("wamid = ? AND organization_id = ?", update.Wamid, orgID).
				First(&msg).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			found = true

			if !model.CanAdvance(msg.Status, update.Status) {
				return nil
			}

			updates := map[string]interface{}{
				"status":            update.Status,
				"status_updated_at": update.Timestamp,
				"updated_at":        utils.Now(),
			}
			if update.Status == model.MessageStatusFailed {
				updates["error_code"] = update.ErrorCode
				updates["error_message"] = update.ErrorMessage
			}
			if err := tx.Model(&model.Message{}).
				Where("id = ? AND organization_id = ?", msg.ID, orgID).
				Updates(updates).Error; err != nil {
				return err
			}

			msg.Status = update.Status
			msg.StatusUpdatedAt = &update.Timestamp
			if update.Status == model.MessageStatusFailed {
				msg.ErrorCode = update.ErrorCode
				msg.ErrorMessage = update.ErrorMessage
			}
			applied = true
			return nil
		})
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "ApplyMessageStatus", operation)
	if err = finish(ctx, "apply_status", "message", orgID, startTime, err, zap.String("wamid", update.Wamid), zap.String("status", string(update.Status))); err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &msg, applied, nil
}

// FindMessageByID loads a message of the current tenant.
func (r *PostgresRepo) FindMessageByID(ctx context.Context, id string) (*model.Message, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var msg model.Message
	operation := func() error {
		return r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, orgID).First(&msg).Error
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "FindMessageByID", operation)
	if err = finish(ctx, "find", "message", orgID, startTime, err, zap.String("message_id", id)); err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindMessageByWamid loads the tenant's message carrying the provider id.
func (r *PostgresRepo) FindMessageByWamid(ctx context.Context, wamid string) (*model.Message, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var msg model.Message
	operation := func() error {
		return r.db.WithContext(ctx).Where("wamid = ? AND organization_id = ?", wamid, orgID).First(&msg).Error
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "FindMessageByWamid", operation)
	if err = finish(ctx, "find_wamid", "message", orgID, startTime, err, zap.String("wamid", wamid)); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessagesByConversation returns a page of history newest first, with
// media rows attached.
func (r *PostgresRepo) ListMessagesByConversation(ctx context.Context, conversationID string, filter MessageFilter) ([]model.Message, int64, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	page := filter.Page.Normalize(DefaultMessagePageSize, MaxMessagePageSize)

	var (
		msgs  []model.Message
		total int64
	)
	operation := func() error {
		db := r.db.WithContext(ctx)
		query := db.Model(&model.Message{}).Where("organization_id = ? AND conversation_id = ?", orgID, conversationID)
		if filter.Before != "" {
			var cursor model.Message
			err := db.Select("timestamp").
				Where("id = ? AND organization_id = ? AND conversation_id = ?", filter.Before, orgID, conversationID).
				First(&cursor).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
			case err != nil:
				return err
			default:
				query = query.Where("timestamp < ?", cursor.Timestamp)
			}
		}

		if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
			return err
		}
		msgs = nil
		if err := query.Order("timestamp DESC").Order("id DESC").
			Offset(page.Offset()).Limit(page.Limit).
			Find(&msgs).Error; err != nil {
			return err
		}
		return attachMedia(db, orgID, msgs)
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "ListMessagesByConversation", operation)
	if err = finish(ctx, "list", "message", orgID, startTime, err, zap.String("conversation_id", conversationID)); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

func attachMedia(db *gorm.DB, orgID string, msgs []model.Message) error {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Type.IsMedia() {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	var media []model.Media
	if err := db.Where("organization_id = ? AND message_id IN ?", orgID, ids).Find(&media).Error; err != nil {
		return err
	}
	byMessage := make(map[string]*model.Media, len(media))
	for i := range media {
		byMessage[media[i].MessageID] = &media[i]
	}
	for i := range msgs {
		msgs[i].Media = byMessage[msgs[i].ID]
	}
	return nil
}
