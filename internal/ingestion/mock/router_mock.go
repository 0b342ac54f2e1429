package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/ingestion"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
)

// RouterMock is a mock implementation of the ingestion.RouterInterface
type RouterMock struct {
	mock.Mock
}

// Ensure RouterMock implements RouterInterface
var _ ingestion.RouterInterface = (*RouterMock)(nil)

// Register mocks the Register method
func (m *RouterMock) Register(kind webhook.EventKind, handler ingestion.EventHandler) {
	m.Called(kind, handler)
}

// RegisterDefault mocks the RegisterDefault method
func (m *RouterMock) RegisterDefault(handler ingestion.EventHandler) {
	m.Called(handler)
}

// Route mocks the Route method
func (m *RouterMock) Route(ctx context.Context, org *model.Organization, event webhook.Event) error {
	args := m.Called(ctx, org, event)
	return args.Error(0)
}

// DispatcherMock is a mock implementation of the ingestion.DispatcherInterface
type DispatcherMock struct {
	mock.Mock
}

// Ensure DispatcherMock implements DispatcherInterface
var _ ingestion.DispatcherInterface = (*DispatcherMock)(nil)

// Submit mocks the Submit method
func (m *DispatcherMock) Submit(task ingestion.Task) {
	m.Called(task)
}

// Stop mocks the Stop method
func (m *DispatcherMock) Stop() {
	m.Called()
}

// ProcessorMock is a mock implementation of the ingestion.Processor
type ProcessorMock struct {
	mock.Mock
}

// Ensure ProcessorMock implements Processor
var _ ingestion.Processor = (*ProcessorMock)(nil)

// Process mocks the Process method
func (m *ProcessorMock) Process(ctx context.Context, body []byte) error {
	args := m.Called(ctx, body)
	return args.Error(0)
}
