package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/ingestion"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// WebhookProcessor turns an acknowledged webhook body into stored state.
type WebhookProcessor struct {
	organizations storage.OrganizationRepo
	webhookLogs   storage.WebhookLogRepo
	router        ingestion.RouterInterface
	ingestion     *IngestionService
	status        *StatusService
	now           func() time.Time
}

// Ensure WebhookProcessor implements ingestion.Processor
var _ ingestion.Processor = (*WebhookProcessor)(nil)

// NewWebhookProcessor creates the processor. organizations is typically the
// cached repository since every change looks up its tenant.
func NewWebhookProcessor(
	organizations storage.OrganizationRepo,
	webhookLogs storage.WebhookLogRepo,
	router ingestion.RouterInterface,
	ingestionService *IngestionService,
	statusService *StatusService,
) *WebhookProcessor {
	return &WebhookProcessor{
		organizations: organizations,
		webhookLogs:   webhookLogs,
		router:        router,
		ingestion:     ingestionService,
		status:        statusService,
		now:           utils.Now,
	}
}

// Setup registers the event handlers on the router.
func (p *WebhookProcessor) Setup() {
	p.router.Register(webhook.KindMessage, p.ingestion.HandleEvent)
	p.router.Register(webhook.KindStatus, p.status.HandleEvent)
	p.router.RegisterDefault(func(ctx context.Context, _ *model.Organization, event webhook.Event) error {
		logger.FromContext(ctx).Warn("Unhandled webhook event", zap.String("event_kind", string(event.Kind)))
		return nil
	})
}

// Process handles one webhook body. Entries run in payload order and each is
// logged before its changes are applied. A change whose phone number id maps
// to no organization is dropped without affecting its siblings.
func (p *WebhookProcessor) Process(ctx context.Context, body []byte) error {
	log := logger.FromContext(ctx)

	env, err := webhook.Parse(body)
	if err != nil {
		log.Warn("Webhook body rejected", zap.Error(err))
		return err
	}

	var errs []error
	for _, entry := range env.Entry {
		if err := p.processEntry(ctx, env.Object, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *WebhookProcessor) processEntry(ctx context.Context, object string, entry webhook.Entry) error {
	log := logger.FromContext(ctx).With(zap.String("entry_id", entry.ID))
	now := p.now()

	p.appendLog(ctx, object, entry, now)

	if entry.DecodeErr != nil {
		log.Warn("Webhook entry could not be decoded", zap.Error(entry.DecodeErr))
		return nil
	}

	var errs []error
	for _, batch := range webhook.NormalizeEntry(entry, now) {
		for i := 0; i < batch.Skipped; i++ {
			observer.IncWebhookChangeDropped("invalid_item")
		}
		if len(batch.Events) == 0 {
			continue
		}

		org, err := p.organizations.FindByPhoneNumberID(ctx, batch.PhoneNumberID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				observer.IncWebhookChangeDropped("unknown_phone_number")
				log.Warn("No organization for phone number, change dropped",
					zap.String("phone_number_id", batch.PhoneNumberID),
					zap.Int("events", len(batch.Events)),
				)
				continue
			}
			observer.IncWebhookChangeDropped("lookup_error")
			log.Error("Organization lookup failed, change dropped",
				zap.String("phone_number_id", batch.PhoneNumberID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}

		for _, event := range batch.Events {
			if err := p.router.Route(ctx, org, event); err != nil {
				log.Error("Webhook event failed",
					zap.String("organization_id", org.ID),
					zap.String("event_kind", string(event.Kind)),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("entry %s: %w", entry.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// appendLog writes the audit copy of entry. Failures are logged; the entry's
// events are still processed since the provider will not redeliver them.
func (p *WebhookProcessor) appendLog(ctx context.Context, object string, entry webhook.Entry, now time.Time) {
	requestID, _ := tenant.FromRequestIDContext(ctx)
	rec := &model.WebhookLog{
		ID:             uuid.NewString(),
		OrganizationID: p.entryOrganization(ctx, entry),
		EntryID:        entry.ID,
		Object:         object,
		RequestID:      requestID,
		Payload:        datatypes.JSON(entry.Raw),
		ReceivedAt:     now,
	}
	err := p.webhookLogs.Append(ctx, rec)
	observer.IncWebhookEntry(err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to append webhook log",
			zap.String("entry_id", entry.ID),
			zap.Error(err),
		)
	}
}

// entryOrganization returns the organization of the first change that names
// a known phone number id.
func (p *WebhookProcessor) entryOrganization(ctx context.Context, entry webhook.Entry) *string {
	for _, ch := range entry.Changes {
		id := ch.Value.Metadata.PhoneNumberID
		if id == "" {
			continue
		}
		if org, err := p.organizations.FindByPhoneNumberID(ctx, id); err == nil {
			return &org.ID
		}
	}
	return nil
}
