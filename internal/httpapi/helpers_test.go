package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/usecase"
)

const (
	testSecret = "test-jwt-secret"
	testOrgID  = "org-1"
	testUserID = "agent-1"
)

func init() {
	gin.SetMode(gin.TestMode)
	observer.InitMetrics(false)
}

type senderMock struct{ mock.Mock }

func (m *senderMock) Send(ctx context.Context, in usecase.SendInput) (*model.Message, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *senderMock) SendMedia(ctx context.Context, in usecase.MediaInput) (*model.Message, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

type conversationsMock struct{ mock.Mock }

func (m *conversationsMock) UpdateStatus(ctx context.Context, id string, status model.ConversationStatus) (*model.Conversation, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *conversationsMock) Assign(ctx context.Context, id string, assignee *string) (*model.Conversation, error) {
	args := m.Called(ctx, id, assignee)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *conversationsMock) MarkAsRead(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

type historyMock struct{ mock.Mock }

func (m *historyMock) ListConversations(ctx context.Context, filter storage.ConversationFilter) (*usecase.ConversationPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.ConversationPage), args.Error(1)
}

func (m *historyMock) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *historyMock) ListMessages(ctx context.Context, conversationID string, filter storage.MessageFilter) (*usecase.MessagePage, error) {
	args := m.Called(ctx, conversationID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.MessagePage), args.Error(1)
}

type mediaMock struct{ mock.Mock }

func (m *mediaMock) Fetch(ctx context.Context, messageID string) (*usecase.MediaStream, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.MediaStream), args.Error(1)
}

type realtimeMock struct{ mock.Mock }

func (m *realtimeMock) Serve(w http.ResponseWriter, r *http.Request, orgID, userID string) error {
	args := m.Called(w, r, orgID, userID)
	return args.Error(0)
}

func testToken(verifier *TokenVerifier, orgID, userID string, ttl time.Duration) string {
	token, err := verifier.Sign(&Claims{
		OrganizationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	if err != nil {
		panic(err)
	}
	return token
}

// apiFixture is a router with every service mocked.
type apiFixture struct {
	engine        *gin.Engine
	verifier      *TokenVerifier
	sender        *senderMock
	conversations *conversationsMock
	history       *historyMock
	media         *mediaMock
	realtime      *realtimeMock
}

func newAPIFixture() *apiFixture {
	f := &apiFixture{
		verifier:      NewTokenVerifier(testSecret, ""),
		sender:        &senderMock{},
		conversations: &conversationsMock{},
		history:       &historyMock{},
		media:         &mediaMock{},
		realtime:      &realtimeMock{},
	}
	f.engine = NewRouter(Handlers{
		Webhook:       NewWebhookHandler(WebhookOptions{}, nil, nil),
		Messages:      NewMessageHandler(f.sender, f.media),
		Conversations: NewConversationHandler(f.conversations),
		History:       NewHistoryHandler(f.history),
		Realtime:      NewRealtimeHandler(f.realtime),
		Verifier:      f.verifier,
	})
	return f
}

func (f *apiFixture) bearer() string {
	return "Bearer " + testToken(f.verifier, testOrgID, testUserID, time.Hour)
}
