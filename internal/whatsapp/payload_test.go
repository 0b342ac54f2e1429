package whatsapp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
)

func TestBuildSendRequest(t *testing.T) {
	testCases := []struct {
		name    string
		content model.Content
		want    string
	}{
		{
			name:    "text",
			content: model.TextContent{Body: "hello"},
			want:    `{"type":"text","text":{"preview_url":true,"body":"hello"}}`,
		},
		{
			name:    "image by id keeps caption",
			content: model.ImageContent{MediaRef: model.MediaRef{MediaID: "M1", Caption: "look", Filename: "ignored.jpg"}},
			want:    `{"type":"image","image":{"id":"M1","caption":"look"}}`,
		},
		{
			name:    "document by link keeps filename",
			content: model.DocumentContent{MediaRef: model.MediaRef{URL: "https://cdn.example/a.pdf", Filename: "a.pdf"}},
			want:    `{"type":"document","document":{"link":"https://cdn.example/a.pdf","filename":"a.pdf"}}`,
		},
		{
			name:    "audio drops caption",
			content: model.AudioContent{MediaRef: model.MediaRef{MediaID: "A1", Caption: "nope"}},
			want:    `{"type":"audio","audio":{"id":"A1"}}`,
		},
		{
			name:    "location",
			content: model.LocationContent{Latitude: 1.5, Longitude: 2.5, Name: "HQ"},
			want:    `{"type":"location","location":{"latitude":1.5,"longitude":2.5,"name":"HQ"}}`,
		},
		{
			name:    "template",
			content: model.TemplateContent{Name: "welcome", Language: model.TemplateLanguage{Code: "en_US"}},
			want:    `{"type":"template","template":{"name":"welcome","language":{"code":"en_US"}}}`,
		},
		{
			name:    "reaction",
			content: model.ReactionContent{MessageID: "wamid.X", Emoji: "🙏"},
			want:    `{"type":"reaction","reaction":{"message_id":"wamid.X","emoji":"🙏"}}`,
		},
		{
			name: "interactive buttons",
			content: model.InteractiveContent{
				Type:   "button",
				Body:   &model.InteractiveText{Text: "Pick one"},
				Action: json.RawMessage(`{"buttons":[{"type":"reply","reply":{"id":"y","title":"Yes"}}]}`),
			},
			want: `{"type":"interactive","interactive":{"type":"button","body":{"text":"Pick one"},"action":{"buttons":[{"type":"reply","reply":{"id":"y","title":"Yes"}}]}}}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := BuildSendRequest("628111", tc.content, "")
			require.NoError(t, err)

			raw, err := json.Marshal(req)
			require.NoError(t, err)

			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, "whatsapp", got["messaging_product"])
			assert.Equal(t, "individual", got["recipient_type"])
			assert.Equal(t, "628111", got["to"])
			assert.NotContains(t, got, "context")
			delete(got, "messaging_product")
			delete(got, "recipient_type")
			delete(got, "to")

			stripped, err := json.Marshal(got)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(stripped))
		})
	}
}

func TestBuildSendRequest_Rejects(t *testing.T) {
	_, err := BuildSendRequest("628111", model.UnknownContent{Raw: json.RawMessage(`{}`)}, "")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	_, err = BuildSendRequest("628111", model.ImageContent{}, "")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}
