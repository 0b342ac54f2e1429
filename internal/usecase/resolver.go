package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

// Resolver maps an external sender to its contact and active conversation.
type Resolver struct {
	contacts      storage.ContactRepo
	conversations storage.ConversationRepo
	now           func() time.Time
}

// NewResolver creates a resolver.
func NewResolver(contacts storage.ContactRepo, conversations storage.ConversationRepo) *Resolver {
	return &Resolver{contacts: contacts, conversations: conversations, now: utils.Now}
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Contact             *model.Contact
	Conversation        *model.Conversation
	ContactCreated      bool
	ConversationCreated bool
}

// Resolve finds or creates the contact with externalID and its non-closed
// conversation. A new contact is named after nameHint, or its phone number
// when no hint is given; an existing contact is renamed when the hint changed.
// ctx must carry the organization.
func (r *Resolver) Resolve(ctx context.Context, orgID, externalID, nameHint string) (*Resolution, error) {
	log := logger.FromContext(ctx)
	now := r.now()

	name := nameHint
	if name == "" {
		name = externalID
	}
	contact, contactCreated, err := r.contacts.FindOrCreate(ctx, &model.Contact{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		ExternalID:     externalID,
		Phone:          externalID,
		Name:           name,
	})
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "find or create contact", externalID)
	}

	if !contactCreated && nameHint != "" && nameHint != contact.Name {
		if err := r.contacts.UpdateName(ctx, contact.ID, nameHint); err != nil {
			// The stale name is harmless; keep ingesting.
			log.Warn("Failed to update contact name",
				zap.String("contact_id", contact.ID),
				zap.Error(err),
			)
		} else {
			contact.Name = nameHint
		}
	}

	conv, err := r.conversations.FindOpenByContact(ctx, contact.ID)
	if err == nil {
		return &Resolution{Contact: contact, Conversation: conv, ContactCreated: contactCreated}, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, handleRepositoryError(ctx, err, "find open conversation", contact.ID)
	}

	window := now.Add(model.SessionWindow)
	conv, convCreated, err := r.conversations.CreateOpen(ctx, &model.Conversation{
		ID:              uuid.NewString(),
		OrganizationID:  orgID,
		ContactID:       contact.ID,
		Status:          model.ConversationOpen,
		WindowExpiresAt: &window,
	})
	if err != nil {
		return nil, handleRepositoryError(ctx, err, "create conversation", contact.ID)
	}
	if convCreated {
		log.Info("Conversation opened",
			zap.String("conversation_id", conv.ID),
			zap.String("contact_id", contact.ID),
		)
	}

	return &Resolution{
		Contact:             contact,
		Conversation:        conv,
		ContactCreated:      contactCreated,
		ConversationCreated: convCreated,
	}, nil
}
