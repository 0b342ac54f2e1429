package webhook

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeMessage_Types(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		wantType model.MessageType
		check    func(t *testing.T, msg *InboundMessage)
	}{
		{
			name:     "text",
			raw:      `{"from":"628111","id":"wamid.T","timestamp":"1700000000","type":"text","text":{"body":"hello"}}`,
			wantType: model.MessageTypeText,
			check: func(t *testing.T, msg *InboundMessage) {
				assert.Equal(t, model.TextContent{Body: "hello"}, msg.Content)
				assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp.UTC())
				assert.Nil(t, msg.Media)
			},
		},
		{
			name:     "image with caption",
			raw:      `{"from":"628111","id":"wamid.I","timestamp":"1700000000","type":"image","image":{"id":"MEDIA1","mime_type":"image/jpeg","sha256":"abc","caption":"look"}}`,
			wantType: model.MessageTypeImage,
			check: func(t *testing.T, msg *InboundMessage) {
				require.NotNil(t, msg.Media)
				assert.Equal(t, "MEDIA1", msg.Media.MediaID)
				assert.Equal(t, "image/jpeg", msg.Media.MimeType)
				assert.Equal(t, "image", msg.MediaKind)
				img, ok := msg.Content.(model.ImageContent)
				require.True(t, ok)
				assert.Equal(t, "look", img.Caption)
			},
		},
		{
			name:     "document without mime type",
			raw:      `{"from":"628111","id":"wamid.D","timestamp":"1700000000","type":"document","document":{"id":"MEDIA2","filename":"invoice.pdf"}}`,
			wantType: model.MessageTypeDocument,
			check: func(t *testing.T, msg *InboundMessage) {
				require.NotNil(t, msg.Media)
				assert.Equal(t, defaultMimeType, msg.Media.MimeType)
				assert.Equal(t, "invoice.pdf", msg.Media.Filename)
			},
		},
		{
			name:     "location",
			raw:      `{"from":"628111","id":"wamid.L","timestamp":"1700000000","type":"location","location":{"latitude":-6.2,"longitude":106.8,"name":"Office"}}`,
			wantType: model.MessageTypeLocation,
			check: func(t *testing.T, msg *InboundMessage) {
				assert.Equal(t, model.LocationContent{Latitude: -6.2, Longitude: 106.8, Name: "Office"}, msg.Content)
			},
		},
		{
			name:     "contacts",
			raw:      `{"from":"628111","id":"wamid.C","timestamp":"1700000000","type":"contacts","contacts":[{"name":{"formatted_name":"Budi"}}]}`,
			wantType: model.MessageTypeContacts,
			check: func(t *testing.T, msg *InboundMessage) {
				c, ok := msg.Content.(model.ContactsContent)
				require.True(t, ok)
				assert.JSONEq(t, `[{"name":{"formatted_name":"Budi"}}]`, string(c.Contacts))
			},
		},
		{
			name:     "interactive list reply",
			raw:      `{"from":"628111","id":"wamid.R","timestamp":"1700000000","type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"opt-2","title":"Billing"}}}`,
			wantType: model.MessageTypeInteractive,
			check: func(t *testing.T, msg *InboundMessage) {
				ic, ok := msg.Content.(model.InteractiveContent)
				require.True(t, ok)
				require.NotNil(t, ic.ListReply)
				assert.Equal(t, "opt-2", ic.ListReply.ID)
			},
		},
		{
			name:     "template button maps to interactive",
			raw:      `{"from":"628111","id":"wamid.B","timestamp":"1700000000","type":"button","button":{"payload":"YES","text":"Yes please"}}`,
			wantType: model.MessageTypeInteractive,
			check: func(t *testing.T, msg *InboundMessage) {
				ic, ok := msg.Content.(model.InteractiveContent)
				require.True(t, ok)
				assert.Equal(t, "button", ic.Type)
				assert.Equal(t, &model.InteractiveReply{ID: "YES", Title: "Yes please"}, ic.ButtonReply)
			},
		},
		{
			name:     "reaction",
			raw:      `{"from":"628111","id":"wamid.X","timestamp":"1700000000","type":"reaction","reaction":{"message_id":"wamid.orig","emoji":"👍"}}`,
			wantType: model.MessageTypeReaction,
			check: func(t *testing.T, msg *InboundMessage) {
				assert.Equal(t, model.ReactionContent{MessageID: "wamid.orig", Emoji: "👍"}, msg.Content)
			},
		},
		{
			name:     "unsupported type keeps raw payload",
			raw:      `{"from":"628111","id":"wamid.U","timestamp":"1700000000","type":"order","order":{"catalog_id":"1"}}`,
			wantType: model.MessageTypeUnknown,
			check: func(t *testing.T, msg *InboundMessage) {
				u, ok := msg.Content.(model.UnknownContent)
				require.True(t, ok)
				assert.JSONEq(t, `{"from":"628111","id":"wamid.U","timestamp":"1700000000","type":"order","order":{"catalog_id":"1"}}`, string(u.Raw))
			},
		},
		{
			name:     "text without body object",
			raw:      `{"from":"628111","id":"wamid.E","timestamp":"1700000000","type":"text"}`,
			wantType: model.MessageTypeUnknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, ok := NormalizeMessage(json.RawMessage(tc.raw), map[string]string{"628111": "Budi"}, testNow)
			require.True(t, ok)
			assert.Equal(t, tc.wantType, msg.Type)
			assert.Equal(t, tc.wantType, msg.Content.MessageType())
			assert.Equal(t, "628111", msg.From)
			assert.Equal(t, "Budi", msg.ProfileName)
			if tc.check != nil {
				tc.check(t, msg)
			}
		})
	}
}

func TestNormalizeMessage_ReplyContext(t *testing.T) {
	raw := `{"from":"628111","id":"wamid.Q","timestamp":"1700000000","type":"text","text":{"body":"re"},"context":{"from":"628000","id":"wamid.parent"}}`
	msg, ok := NormalizeMessage(json.RawMessage(raw), nil, testNow)
	require.True(t, ok)
	assert.Equal(t, "wamid.parent", msg.ContextWamid)
	assert.Empty(t, msg.ProfileName)
}

func TestNormalizeMessage_MalformedIsSalvaged(t *testing.T) {
	// text is a string instead of an object
	raw := `{"from":"628111","id":"wamid.M","timestamp":"bogus","type":"text","text":"oops"}`
	msg, ok := NormalizeMessage(json.RawMessage(raw), nil, testNow)
	require.True(t, ok)
	assert.Equal(t, "wamid.M", msg.Wamid)
	assert.Equal(t, model.MessageTypeUnknown, msg.Type)
	assert.Equal(t, testNow, msg.Timestamp)
}

func TestNormalizeMessage_NoID(t *testing.T) {
	_, ok := NormalizeMessage(json.RawMessage(`{"from":"628111","type":"text","text":{"body":"x"}}`), nil, testNow)
	assert.False(t, ok)

	_, ok = NormalizeMessage(json.RawMessage(`[1,2,3]`), nil, testNow)
	assert.False(t, ok)
}

func TestNormalizeStatus(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		st, ok := NormalizeStatus(json.RawMessage(`{"id":"wamid.S","status":"delivered","timestamp":"1700000100","recipient_id":"628111"}`), testNow)
		require.True(t, ok)
		assert.Equal(t, model.MessageStatusDelivered, st.Status)
		assert.Equal(t, "628111", st.RecipientID)
		assert.Nil(t, st.ErrorCode)
	})

	t.Run("failed carries first error", func(t *testing.T) {
		st, ok := NormalizeStatus(json.RawMessage(`{"id":"wamid.S","status":"failed","timestamp":"1700000100",
			"errors":[{"code":131047,"title":"Re-engagement message"},{"code":1,"title":"ignored"}]}`), testNow)
		require.True(t, ok)
		assert.Equal(t, model.MessageStatusFailed, st.Status)
		assert.Equal(t, "131047", *st.ErrorCode)
		assert.Equal(t, "Re-engagement message", *st.ErrorMessage)
	})

	t.Run("error message falls back when title is empty", func(t *testing.T) {
		st, ok := NormalizeStatus(json.RawMessage(`{"id":"wamid.S","status":"failed","errors":[{"code":130472,"message":"User's number is part of an experiment"}]}`), testNow)
		require.True(t, ok)
		assert.Equal(t, "User's number is part of an experiment", *st.ErrorMessage)
		assert.Equal(t, testNow, st.Timestamp)
	})

	t.Run("unknown status value is dropped", func(t *testing.T) {
		_, ok := NormalizeStatus(json.RawMessage(`{"id":"wamid.S","status":"deleted"}`), testNow)
		assert.False(t, ok)
	})

	t.Run("missing id is dropped", func(t *testing.T) {
		_, ok := NormalizeStatus(json.RawMessage(`{"status":"read"}`), testNow)
		assert.False(t, ok)
	})
}

func TestNormalizeEntry(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account","entry":[{"id":"WABA-1","changes":[
		{"field":"account_update","value":{"metadata":{"phone_number_id":"PN-1"}}},
		{"field":"messages","value":{
			"messaging_product":"whatsapp",
			"metadata":{"display_phone_number":"6280000","phone_number_id":"PN-1"},
			"contacts":[{"profile":{"name":"Budi"},"wa_id":"628111"}],
			"messages":[
				{"from":"628111","id":"wamid.1","timestamp":"1700000000","type":"text","text":{"body":"one"}},
				{"from":"628111","timestamp":"1700000001","type":"text","text":{"body":"no id"}},
				{"from":"628111","id":"wamid.2","timestamp":"1700000002","type":"text","text":{"body":"two"}}
			],
			"statuses":[{"id":"wamid.out","status":"read","timestamp":"1700000003"}]
		}}]}]}`)

	env, err := Parse(body)
	require.NoError(t, err)

	batches := NormalizeEntry(env.Entry[0], testNow)
	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, "WABA-1", b.EntryID)
	assert.Equal(t, "PN-1", b.PhoneNumberID)
	assert.Equal(t, "6280000", b.DisplayPhoneNumber)
	assert.Equal(t, 1, b.Skipped)
	require.Len(t, b.Events, 3)

	assert.Equal(t, KindMessage, b.Events[0].Kind)
	assert.Equal(t, "wamid.1", b.Events[0].Message.Wamid)
	assert.Equal(t, "Budi", b.Events[0].Message.ProfileName)
	assert.Equal(t, "wamid.2", b.Events[1].Message.Wamid)
	assert.Equal(t, KindStatus, b.Events[2].Kind)
	assert.Equal(t, model.MessageStatusRead, b.Events[2].Status.Status)

	assert.Len(t, Normalize(env), 1)
}
