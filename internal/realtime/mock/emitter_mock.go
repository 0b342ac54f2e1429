package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/realtime"
)

// EmitterMock mocks realtime.Emitter
type EmitterMock struct {
	mock.Mock
}

// Ensure EmitterMock implements realtime.Emitter
var _ realtime.Emitter = (*EmitterMock)(nil)

func (m *EmitterMock) EmitToOrganization(ctx context.Context, orgID, event string, payload interface{}) {
	m.Called(ctx, orgID, event, payload)
}

func (m *EmitterMock) EmitToConversation(ctx context.Context, orgID, conversationID, event string, payload interface{}) {
	m.Called(ctx, orgID, conversationID, event, payload)
}

func (m *EmitterMock) EmitToUser(ctx context.Context, orgID, userID, event string, payload interface{}) {
	m.Called(ctx, orgID, userID, event, payload)
}
