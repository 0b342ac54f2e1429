package ingestion

import (
	"context"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
)

// RouterInterface defines the interface for an event router
type RouterInterface interface {
	// Register registers a handler for an event kind
	Register(kind webhook.EventKind, handler EventHandler)

	// RegisterDefault registers a default handler for unknown event kinds
	RegisterDefault(handler EventHandler)

	// Route routes an event to the appropriate handler
	Route(ctx context.Context, org *model.Organization, event webhook.Event) error
}

// Processor handles one authenticated webhook body.
type Processor interface {
	Process(ctx context.Context, body []byte) error
}

// DispatcherInterface detaches webhook processing from the HTTP request.
type DispatcherInterface interface {
	// Submit schedules task and returns without waiting for it
	Submit(task Task)

	// Stop waits for in-flight tasks and releases the pool
	Stop()
}

// Ensure Router implements RouterInterface
var _ RouterInterface = (*Router)(nil)

// Ensure Dispatcher implements DispatcherInterface
var _ DispatcherInterface = (*Dispatcher)(nil)
