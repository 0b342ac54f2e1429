package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// --- Organization Repository Methods ---

// FindOrganizationByID loads an organization by primary key.
func (r *PostgresRepo) FindOrganizationByID(ctx context.Context, id string) (*model.Organization, error) {
	return r.findOrganization(ctx, "FindOrganizationByID", "id = ?", id)
}

// FindOrganizationByPhoneNumberID maps the phone_number_id of a webhook change to its tenant.
func (r *PostgresRepo) FindOrganizationByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Organization, error) {
	if phoneNumberID == "" {
		return nil, fmt.Errorf("%w: empty phone_number_id", apperrors.ErrBadRequest)
	}
	return r.findOrganization(ctx, "FindOrganizationByPhoneNumberID", "phone_number_id = ?", phoneNumberID)
}

// FindOrganizationByVerifyToken returns any organization configured with token.
func (r *PostgresRepo) FindOrganizationByVerifyToken(ctx context.Context, token string) (*model.Organization, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty verify token", apperrors.ErrBadRequest)
	}
	return r.findOrganization(ctx, "FindOrganizationByVerifyToken", "verify_token = ?", token)
}

func (r *PostgresRepo) findOrganization(ctx context.Context, opName, where string, arg string) (*model.Organization, error) {
	var org model.Organization
	operation := func() error {
		return r.db.WithContext(ctx).Where(where, arg).First(&org).Error
	}

	startTime := utils.Now()
	err := retryableOperation(ctx, newRetryPolicy(ctx, readRetryMaxElapsedTime), opName, operation)
	if err = finish(ctx, "find", "organization", org.ID, startTime, err, zap.String("lookup", opName)); err != nil {
		return nil, err
	}
	return &org, nil
}
