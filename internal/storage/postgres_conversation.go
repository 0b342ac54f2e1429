package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// --- Conversation Repository Methods ---

// FindConversationByID loads a conversation of the current tenant.
func (r *PostgresRepo) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	operation := func() error {
		return r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, orgID).First(&conv).Error
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "FindConversationByID", operation)
	if err = finish(ctx, "find", "conversation", orgID, startTime, err, zap.String("conversation_id", id)); err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindOpenConversationByContact returns the non-closed conversation of a contact.
func (r *PostgresRepo) FindOpenConversationByContact(ctx context.Context, contactID string) (*model.Conversation, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	operation := func() error {
		return r.findOpen(r.db.WithContext(ctx), orgID, contactID, &conv)
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "FindOpenConversationByContact", operation)
	if err = finish(ctx, "find_open", "conversation", orgID, startTime, err, zap.String("contact_id", contactID)); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *PostgresRepo) findOpen(db *gorm.DB, orgID, contactID string, out *model.Conversation) error {
	return db.Where("organization_id = ? AND contact_id = ? AND status <> ?", orgID, contactID, model.ConversationClosed).
		Order("created_at DESC").
		First(out).Error
}

// CreateOpenConversation inserts conv against the partial unique index on
// non-closed conversations. Losing the race returns the winner's row.
func (r *PostgresRepo) CreateOpenConversation(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, false, err
	}
	if conv.OrganizationID != orgID {
		return nil, false, fmt.Errorf("%w: conversation organization %s does not match tenant %s", apperrors.ErrBadRequest, conv.OrganizationID, orgID)
	}
	if conv.Status == "" {
		conv.Status = model.ConversationOpen
	}

	var (
		stored  model.Conversation
		created bool
	)
	operation := func() error {
		db := r.db.WithContext(ctx)
		res := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "contact_id"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: openConversationPredicate},
			}},
			DoNothing: true,
		}).Create(conv)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		if created {
			stored = *conv
			return nil
		}
		if err := r.findOpen(db, orgID, conv.ContactID, &stored); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// the winner was closed between our insert and read
				return backoff.Permanent(fmt.Errorf("%w: open conversation for contact %s vanished", apperrors.ErrConflict, conv.ContactID))
			}
			return err
		}
		return nil
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "CreateOpenConversation", operation)
	if err = finish(ctx, "create", "conversation", orgID, startTime, err, zap.String("contact_id", conv.ContactID)); err != nil {
		return nil, false, err
	}
	return &stored, created, nil
}

// UpdateConversationStatus changes the lifecycle status and stamps
// resolved_at or closed_at. Reopening a closed conversation while another one
// is open fails with ErrDuplicate from the partial index.
func (r *PostgresRepo) UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus, at time.Time) (*model.Conversation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown conversation status %q", apperrors.ErrBadRequest, status)
	}
	return r.updateConversation(ctx, "UpdateConversationStatus", id, func(conv *model.Conversation) map[string]interface{} {
		updates := map[string]interface{}{"status": status}
		switch status {
		case model.ConversationResolved:
			updates["resolved_at"] = at
		case model.ConversationClosed:
			updates["closed_at"] = at
		case model.ConversationOpen, model.ConversationPending:
			if conv.Status == model.ConversationClosed {
				updates["closed_at"] = nil
			}
		}
		return updates
	})
}

// AssignConversation sets or clears the agent working the conversation.
func (r *PostgresRepo) AssignConversation(ctx context.Context, id string, assignee *string) (*model.Conversation, error) {
	return r.updateConversation(ctx, "AssignConversation", id, func(*model.Conversation) map[string]interface{} {
		return map[string]interface{}{"assigned_to": assignee}
	})
}

// ResetConversationUnread zeroes the unread counter.
func (r *PostgresRepo) ResetConversationUnread(ctx context.Context, id string) (*model.Conversation, error) {
	return r.updateConversation(ctx, "ResetConversationUnread", id, func(*model.Conversation) map[string]interface{} {
		return map[string]interface{}{"unread_count": 0}
	})
}

// updateConversation locks the row, applies the columns built by mutate and
// returns the reloaded conversation.
func (r *PostgresRepo) updateConversation(ctx context.Context, opName, id string, mutate func(*model.Conversation) map[string]interface{}) (*model.Conversation, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var conv model.Conversation
	operation := func() error {
		return r.inTx(ctx, func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ? AND organization_id = ?", id, orgID).
				First(&conv).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return backoff.Permanent(err)
				}
				return err
			}

			updates := mutate(&conv)
			updates["updated_at"] = utils.Now()
			if err := tx.Model(&model.Conversation{}).
				Where("id = ? AND organization_id = ?", id, orgID).
				Updates(updates).Error; err != nil {
				return err
			}
			return tx.Where("id = ? AND organization_id = ?", id, orgID).First(&conv).Error
		})
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), opName, operation)
	if err = finish(ctx, "update", "conversation", orgID, startTime, err, zap.String("conversation_id", id), zap.String("op", opName)); err != nil {
		return nil, err
	}
	return &conv, nil
}

// applyAggregate writes the message-driven conversation columns inside tx.
func applyAggregate(tx *gorm.DB, orgID string, agg model.AggregateUpdate) error {
	updates := map[string]interface{}{
		"last_message_at":      agg.LastMessageAt,
		"last_message_preview": agg.Preview,
		"last_message_type":    agg.Type,
		"updated_at":           utils.Now(),
	}
	if agg.IncrementUnread {
		updates["unread_count"] = gorm.Expr("unread_count + ?", 1)
	}
	if agg.WindowExpiresAt != nil {
		updates["window_expires_at"] = *agg.WindowExpiresAt
	}

	res := tx.Model(&model.Conversation{}).
		Where("id = ? AND organization_id = ?", agg.ConversationID, orgID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return backoff.Permanent(fmt.Errorf("%w: conversation %s", apperrors.ErrConversationNotFound, agg.ConversationID))
	}
	return nil
}

// ListConversations returns a page of the tenant's conversations ordered by
// last activity, with contacts attached.
func (r *PostgresRepo) ListConversations(ctx context.Context, filter ConversationFilter) ([]model.Conversation, int64, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	page := filter.Page.Normalize(DefaultConversationPageSize, MaxConversationPageSize)

	var (
		convs []model.Conversation
		total int64
	)
	operation := func() error {
		db := r.db.WithContext(ctx)
		query := db.Model(&model.Conversation{}).Where("organization_id = ?", orgID)
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		switch filter.AssignedTo {
		case "":
		case UnassignedFilter:
			query = query.Where("assigned_to IS NULL")
		default:
			query = query.Where("assigned_to = ?", filter.AssignedTo)
		}
		if search := strings.TrimSpace(filter.Search); search != "" {
			pattern := "%" + escapeLike(search) + "%"
			matching := db.Model(&model.Contact{}).Select("id").
				Where("organization_id = ? AND (name ILIKE ? OR phone LIKE ?)", orgID, pattern, pattern)
			query = query.Where("contact_id IN (?)", matching)
		}

		if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
			return err
		}
		convs = nil
		if err := query.Order("last_message_at DESC NULLS LAST").Order("created_at DESC").
			Offset(page.Offset()).Limit(page.Limit).
			Find(&convs).Error; err != nil {
			return err
		}
		return r.attachContacts(db, orgID, convs)
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "ListConversations", operation)
	if err = finish(ctx, "list", "conversation", orgID, startTime, err); err != nil {
		return nil, 0, err
	}
	return convs, total, nil
}

func (r *PostgresRepo) attachContacts(db *gorm.DB, orgID string, convs []model.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ContactID)
	}
	var contacts []model.Contact
	if err := db.Where("organization_id = ? AND id IN ?", orgID, ids).Find(&contacts).Error; err != nil {
		return err
	}
	byID := make(map[string]*model.Contact, len(contacts))
	for i := range contacts {
		byID[contacts[i].ID] = &contacts[i]
	}
	for i := range convs {
		convs[i].Contact = byID[convs[i].ContactID]
	}
	return nil
}

// escapeLike quotes the LIKE wildcards in s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
