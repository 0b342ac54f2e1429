package storage

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// --- Contact Repository Methods ---

// FindOrCreateContact inserts c with ON CONFLICT DO NOTHING and re-reads the row, so
// concurrent webhooks for a new sender converge on one contact.
func (r *PostgresRepo) FindOrCreateContact(ctx context.Context, c *model.Contact) (*model.Contact, bool, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, false, err
	}
	if c.OrganizationID != orgID {
		return nil, false, fmt.Errorf("%w: contact organization %s does not match tenant %s", apperrors.ErrBadRequest, c.OrganizationID, orgID)
	}

	var (
		stored  model.Contact
		created bool
	)
	operation := func() error {
		db := r.db.WithContext(ctx)
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).Create(c)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		if created {
			stored = *c
			return nil
		}
		return db.Where("organization_id = ? AND external_id = ?", orgID, c.ExternalID).First(&stored).Error
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "FindOrCreateContact", operation)
	if err = finish(ctx, "upsert", "contact", orgID, startTime, err, zap.String("external_id", c.ExternalID)); err != nil {
		return nil, false, err
	}
	return &stored, created, nil
}

// FindContactByID loads a contact of the current tenant.
func (r *PostgresRepo) FindContactByID(ctx context.Context, id string) (*model.Contact, error) {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var contact model.Contact
	operation := func() error {
		return r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, orgID).First(&contact).Error
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), "FindContactByID", operation)
	if err = finish(ctx, "find", "contact", orgID, startTime, err, zap.String("contact_id", id)); err != nil {
		return nil, err
	}
	return &contact, nil
}

// UpdateContactName refreshes the profile name reported by the provider.
func (r *PostgresRepo) UpdateContactName(ctx context.Context, id, name string) error {
	orgID, err := orgFromContext(ctx)
	if err != nil {
		return err
	}

	operation := func() error {
		res := r.db.WithContext(ctx).Model(&model.Contact{}).
			Where("id = ? AND organization_id = ?", id, orgID).
			Updates(map[string]interface{}{"name": name, "updated_at": utils.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return backoff.Permanent(gorm.ErrRecordNotFound)
		}
		return nil
	}

	startTime := utils.Now()
	err = retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "UpdateContactName", operation)
	return finish(ctx, "update", "contact", orgID, startTime, err, zap.String("contact_id", id))
}
