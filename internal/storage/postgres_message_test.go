package storage

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
)

var messageColumns = []string{"id", "organization_id", "conversation_id", "wamid", "direction", "type", "status", "content"}

func inboundFixture() (*model.Message, model.AggregateUpdate) {
	msg := model.NewTextMessage(func(m *model.Message) { m.OrganizationID = testOrgID })
	window := msg.Timestamp.Add(model.SessionWindow)
	agg := model.AggregateUpdate{
		ConversationID:  msg.ConversationID,
		LastMessageAt:   msg.Timestamp,
		Preview:         "hello",
		Type:            model.MessageTypeText,
		IncrementUnread: true,
		WindowExpiresAt: &window,
	}
	return msg, agg
}

func TestSaveInboundMessage_New(t *testing.T) {
	repo, mock := newTestRepo(t)
	msg, agg := inboundFixture()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "messages"`) + `.*` + regexp.QuoteMeta(`ON CONFLICT ("wamid") DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "conversations" SET`) + `.*` + regexp.QuoteMeta(`"unread_count"=unread_count + $`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stored, created, err := repo.SaveInboundMessage(contextWithTestTenant(), msg, nil, agg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, msg.ID, stored.ID)
}

func TestSaveInboundMessage_WithMedia(t *testing.T) {
	repo, mock := newTestRepo(t)
	msg, agg := inboundFixture()
	media := &model.Media{ID: "media-row", MediaID: "provider-media", Type: "IMAGE", MimeType: "image/jpeg"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "messages"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "media"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "conversations" SET`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stored, created, err := repo.SaveInboundMessage(contextWithTestTenant(), msg, media, agg)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, msg.ID, media.MessageID)
	assert.Equal(t, testOrgID, media.OrganizationID)
	assert.Same(t, media, stored.Media)
}

func TestSaveInboundMessage_DuplicateWritesNothingElse(t *testing.T) {
	repo, mock := newTestRepo(t)
	msg, agg := inboundFixture()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "messages"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages" WHERE wamid = $1 AND organization_id = $2`)).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("first-id", testOrgID, msg.ConversationID, msg.WamidValue(), "INBOUND", "TEXT", "DELIVERED", []byte(`{"body":"hi"}`)))
	mock.ExpectCommit()

	stored, created, err := repo.SaveInboundMessage(contextWithTestTenant(), msg, &model.Media{ID: "m"}, agg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "first-id", stored.ID)
	assert.Nil(t, stored.Media)
}

func TestSaveInboundMessage_MissingConversation(t *testing.T) {
	repo, mock := newTestRepo(t)
	msg, agg := inboundFixture()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "messages"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "conversations" SET`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, _, err := repo.SaveInboundMessage(contextWithTestTenant(), msg, nil, agg)
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestSaveInboundMessage_RequiresWamid(t *testing.T) {
	repo, _ := newTestRepo(t)
	msg, agg := inboundFixture()
	msg.Wamid = nil

	_, _, err := repo.SaveInboundMessage(contextWithTestTenant(), msg, nil, agg)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestApplyMessageStatus(t *testing.T) {
	update := StatusUpdate{Wamid: "wamid.X", Status: model.MessageStatusRead, Timestamp: time.Unix(1700000300, 0)}

	t.Run("advances forward", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages" WHERE wamid = $1 AND organization_id = $2`) + `.*FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows(messageColumns).AddRow("m1", testOrgID, "c1", "wamid.X", "OUTBOUND", "TEXT", "DELIVERED", []byte(`{}`)))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages" SET "status"=$1,"status_updated_at"=$2`)).
			WithArgs("READ", AnyTime{}, AnyTime{}, "m1", testOrgID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		msg, applied, err := repo.ApplyMessageStatus(contextWithTestTenant(), update)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, model.MessageStatusRead, msg.Status)
	})

	t.Run("ignores stale status", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages"`)).
			WillReturnRows(sqlmock.NewRows(messageColumns).AddRow("m1", testOrgID, "c1", "wamid.X", "OUTBOUND", "TEXT", "READ", []byte(`{}`)))
		mock.ExpectCommit()

		stale := update
		stale.Status = model.MessageStatusDelivered
		msg, applied, err := repo.ApplyMessageStatus(contextWithTestTenant(), stale)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, model.MessageStatusRead, msg.Status)
	})

	t.Run("unknown wamid is a no-op", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages"`)).
			WillReturnRows(sqlmock.NewRows(messageColumns))
		mock.ExpectCommit()

		msg, applied, err := repo.ApplyMessageStatus(contextWithTestTenant(), update)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Nil(t, msg)
	})

	t.Run("failure stores error details", func(t *testing.T) {
		repo, mock := newTestRepo(t)
		failed := StatusUpdate{
			Wamid:        "wamid.X",
			Status:       model.MessageStatusFailed,
			Timestamp:    time.Unix(1700000300, 0),
			ErrorCode:    model.StringPtr("131047"),
			ErrorMessage: model.StringPtr("Re-engagement message"),
		}
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages"`)).
			WillReturnRows(sqlmock.NewRows(messageColumns).AddRow("m1", testOrgID, "c1", "wamid.X", "OUTBOUND", "TEXT", "SENT", []byte(`{}`)))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages" SET "error_code"=$1,"error_message"=$2,"status"=$3`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		msg, applied, err := repo.ApplyMessageStatus(contextWithTestTenant(), failed)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, "131047", *msg.ErrorCode)
	})
}

func TestMarkMessageSent(t *testing.T) {
	repo, mock := newTestRepo(t)
	agg := model.AggregateUpdate{ConversationID: "c1", LastMessageAt: time.Now(), Preview: "hi", Type: model.MessageTypeText}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages" SET`) + `.*"wamid"=`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "conversations" SET "last_message_at"=$1,"last_message_preview"=$2,"last_message_type"=$3,"updated_at"=$4`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages" WHERE id = $1 AND organization_id = $2`)).
		WillReturnRows(sqlmock.NewRows(messageColumns).AddRow("m1", testOrgID, "c1", "wamid.S", "OUTBOUND", "TEXT", "SENT", []byte(`{"body":"hi"}`)))
	mock.ExpectCommit()

	msg, err := repo.MarkMessageSent(contextWithTestTenant(), "m1", "wamid.S", time.Now(), agg)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusSent, msg.Status)
	assert.Equal(t, "wamid.S", msg.WamidValue())
}

func TestMarkMessageFailed(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "messages" SET "error_code"=$1,"error_message"=$2,"status"=$3`)).
		WithArgs("131026", "Message undeliverable", "FAILED", AnyTime{}, AnyTime{}, "m1", testOrgID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages"`)).
		WillReturnRows(sqlmock.NewRows(messageColumns).AddRow("m1", testOrgID, "c1", nil, "OUTBOUND", "TEXT", "FAILED", []byte(`{}`)))

	msg, err := repo.MarkMessageFailed(contextWithTestTenant(), "m1", "131026", "Message undeliverable", time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusFailed, msg.Status)
	assert.Nil(t, msg.Wamid)
}

func TestAppendWebhookLog(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "webhook_logs"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &model.WebhookLog{EntryID: "WABA-1", Object: "whatsapp_business_account", Payload: model.RandomJSON()}
	require.NoError(t, repo.AppendWebhookLog(contextWithTestTenant(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.ReceivedAt.IsZero())
}

func TestFindMessageByWamid(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages" WHERE wamid = $1 AND organization_id = $2`)).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("msg-1", testOrgID, "conv-1", "wamid.A", "INBOUND", "TEXT", "DELIVERED", []byte(`{"body":"hi"}`)))

	msg, err := repo.FindMessageByWamid(contextWithTestTenant(), "wamid.A")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.ID)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages" WHERE wamid = $1 AND organization_id = $2`)).
		WillReturnRows(sqlmock.NewRows(messageColumns))
	_, err = repo.FindMessageByWamid(contextWithTestTenant(), "wamid.missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListMessagesByConversation_BeforeCursorAndMedia(t *testing.T) {
	repo, mock := newTestRepo(t)
	cursorAt := time.Unix(1700000500, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "timestamp" FROM "messages" WHERE id = $1 AND organization_id = $2 AND conversation_id = $3`)).
		WillReturnRows(sqlmock.NewRows([]string{"timestamp"}).AddRow(cursorAt))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "messages" WHERE (organization_id = $1 AND conversation_id = $2) AND timestamp < $3`)).
		WithArgs(testOrgID, "conv-1", cursorAt).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "messages" WHERE (organization_id = $1 AND conversation_id = $2) AND timestamp < $3 ORDER BY timestamp DESC,id DESC LIMIT`)).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("msg-2", testOrgID, "conv-1", "wamid.2", "INBOUND", "IMAGE", "DELIVERED", []byte(`{"id":"media-2"}`)).
			AddRow("msg-1", testOrgID, "conv-1", "wamid.1", "INBOUND", "TEXT", "DELIVERED", []byte(`{"body":"hi"}`)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "media" WHERE organization_id = $1 AND message_id IN ($2)`)).
		WithArgs(testOrgID, "msg-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "message_id", "mime_type"}).
			AddRow("media-row-2", testOrgID, "msg-2", "image/jpeg"))

	msgs, total, err := repo.ListMessagesByConversation(contextWithTestTenant(), "conv-1", MessageFilter{Before: "msg-cursor"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].Media)
	assert.Equal(t, "image/jpeg", msgs[0].Media.MimeType)
	assert.Nil(t, msgs[1].Media)
}
