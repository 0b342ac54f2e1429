package storage

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// AppendWebhookLog writes one audit row. Entries whose organization could not
// be resolved are stored with a NULL organization_id.
func (r *PostgresRepo) AppendWebhookLog(ctx context.Context, entry *model.WebhookLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = utils.Now()
	}

	operation := func() error {
		return r.db.WithContext(ctx).Create(entry).Error
	}

	orgID := ""
	if entry.OrganizationID != nil {
		orgID = *entry.OrganizationID
	}
	startTime := utils.Now()
	err := retryableOperation(ctx, newRetryPolicy(ctx, commitRetryMaxElapsedTime), "AppendWebhookLog", operation)
	return finish(ctx, "append", "webhook_log", orgID, startTime, err, zap.String("entry_id", entry.EntryID))
}
