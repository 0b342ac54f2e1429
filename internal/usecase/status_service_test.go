package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
)

func statusEvent(wamid string, status model.MessageStatus) *webhook.StatusEvent {
	return &webhook.StatusEvent{Wamid: wamid, Status: status, Timestamp: time.Unix(1714560000, 0).UTC()}
}

func TestApplyStatus_UnknownMessage(t *testing.T) {
	f := newFixture()
	org := model.NewOrganization()
	svc := NewStatusService(f.messages, f.emitter)

	f.messages.On("ApplyStatus", mock.Anything, mock.Anything).Return(nil, false, nil)

	got, err := svc.ApplyStatus(orgContext(org), org.ID, statusEvent("wamid.unknown", model.MessageStatusDelivered))
	require.NoError(t, err)
	assert.Nil(t, got)
	f.emitter.AssertNotCalled(t, "EmitToOrganization", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyStatus_AppliedEmits(t *testing.T) {
	f := newFixture()
	org := model.NewOrganization()
	svc := NewStatusService(f.messages, f.emitter)
	ev := statusEvent("wamid.S", model.MessageStatusRead)
	msg := model.NewTextMessage(func(m *model.Message) {
		m.Direction = model.DirectionOutbound
		m.Status = model.MessageStatusRead
	})

	f.messages.On("ApplyStatus", mock.Anything, storage.StatusUpdate{
		Wamid:     "wamid.S",
		Status:    model.MessageStatusRead,
		Timestamp: ev.Timestamp,
	}).Return(msg, true, nil)
	f.emitter.On("EmitToOrganization", mock.Anything, org.ID, model.EventMessageStatus, model.MessageStatusPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Wamid:          "wamid.S",
		Status:         model.MessageStatusRead,
		Timestamp:      ev.Timestamp,
	}).Return()

	got, err := svc.ApplyStatus(orgContext(org), org.ID, ev)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
	f.emitter.AssertExpectations(t)
}

func TestApplyStatus_StaleStatusIgnored(t *testing.T) {
	f := newFixture()
	org := model.NewOrganization()
	svc := NewStatusService(f.messages, f.emitter)
	current := model.NewTextMessage(func(m *model.Message) { m.Status = model.MessageStatusRead })

	f.messages.On("ApplyStatus", mock.Anything, mock.Anything).Return(current, false, nil)

	got, err := svc.ApplyStatus(orgContext(org), org.ID, statusEvent(current.WamidValue(), model.MessageStatusSent))
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusRead, got.Status)
	f.emitter.AssertNotCalled(t, "EmitToOrganization", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyStatus_FailedCarriesError(t *testing.T) {
	f := newFixture()
	org := model.NewOrganization()
	svc := NewStatusService(f.messages, f.emitter)
	ev := statusEvent("wamid.F", model.MessageStatusFailed)
	ev.ErrorCode = model.StringPtr("131047")
	ev.ErrorMessage = model.StringPtr("Re-engagement message")
	failed := model.NewTextMessage(func(m *model.Message) {
		m.Status = model.MessageStatusFailed
		m.ErrorCode = ev.ErrorCode
		m.ErrorMessage = ev.ErrorMessage
	})

	f.messages.On("ApplyStatus", mock.Anything, mock.MatchedBy(func(u storage.StatusUpdate) bool {
		return u.ErrorCode != nil && *u.ErrorCode == "131047"
	})).Return(failed, true, nil)
	f.emitter.On("EmitToOrganization", mock.Anything, org.ID, model.EventMessageStatus, mock.MatchedBy(func(p model.MessageStatusPayload) bool {
		return p.ErrorMessage != nil && *p.ErrorMessage == "Re-engagement message"
	})).Return()

	_, err := svc.ApplyStatus(orgContext(org), org.ID, ev)
	require.NoError(t, err)
	f.emitter.AssertExpectations(t)
}

func TestApplyStatus_RepositoryError(t *testing.T) {
	f := newFixture()
	org := model.NewOrganization()
	svc := NewStatusService(f.messages, f.emitter)

	f.messages.On("ApplyStatus", mock.Anything, mock.Anything).Return(nil, false, apperrors.ErrTimeout)

	_, err := svc.ApplyStatus(orgContext(org), org.ID, statusEvent("wamid.T", model.MessageStatusSent))
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}
