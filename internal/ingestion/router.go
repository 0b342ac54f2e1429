package ingestion

import (
	"context"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

// EventHandler processes one normalized event for an organization.
type EventHandler func(ctx context.Context, org *model.Organization, event webhook.Event) error

// Router routes normalized webhook events to the handler registered for
// their kind.
type Router struct {
	handlers map[webhook.EventKind]EventHandler
	// Default handler for unknown event kinds
	defaultHandler EventHandler
}

// NewRouter creates a new event router
func NewRouter() *Router {
	return &Router{
		handlers: make(map[webhook.EventKind]EventHandler),
	}
}

// Register registers a handler for an event kind
func (r *Router) Register(kind webhook.EventKind, handler EventHandler) {
	r.handlers[kind] = handler
}

// RegisterDefault registers a default handler for unknown event kinds
func (r *Router) RegisterDefault(handler EventHandler) {
	r.defaultHandler = handler
}

// Route scopes ctx to org and hands event to its handler.
func (r *Router) Route(ctx context.Context, org *model.Organization, event webhook.Event) error {
	ctx = tenant.WithOrganizationID(ctx, org.ID)

	log := logger.FromContext(ctx).With(zap.String("event_kind", string(event.Kind)))
	switch {
	case event.Message != nil:
		log = log.With(zap.String("wamid", event.Message.Wamid), zap.String("message_type", string(event.Message.Type)))
	case event.Status != nil:
		log = log.With(zap.String("wamid", event.Status.Wamid), zap.String("status", string(event.Status.Status)))
	}
	ctx = logger.WithLogger(ctx, log)

	log.Debug("Event received")

	handler, ok := r.handlers[event.Kind]
	if !ok && r.defaultHandler != nil {
		log.Warn("No specific handler for event kind, using default")
		return r.defaultHandler(ctx, org, event)
	} else if !ok {
		log.Error("No handler registered for event kind")
		return nil
	}

	return handler(ctx, org, event)
}
