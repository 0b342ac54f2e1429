package whatsapp

import (
	"encoding/json"
	"fmt"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
)

const messagingProduct = "whatsapp"

// SendRequest is the Graph API body for POST /{phone-number-id}/messages.
// Exactly one of the typed fields is set, matching Type.
type SendRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Context          *replyContext   `json:"context,omitempty"`
	Text             *textBody       `json:"text,omitempty"`
	Image            *mediaBody      `json:"image,omitempty"`
	Video            *mediaBody      `json:"video,omitempty"`
	Audio            *mediaBody      `json:"audio,omitempty"`
	Document         *mediaBody      `json:"document,omitempty"`
	Sticker          *mediaBody      `json:"sticker,omitempty"`
	Location         *locationBody   `json:"location,omitempty"`
	Contacts         json.RawMessage `json:"contacts,omitempty"`
	Interactive      *interactive    `json:"interactive,omitempty"`
	Template         *templateBody   `json:"template,omitempty"`
	Reaction         *reactionBody   `json:"reaction,omitempty"`
}

type replyContext struct {
	MessageID string `json:"message_id"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type mediaBody struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type locationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type interactive struct {
	Type   string                 `json:"type"`
	Header json.RawMessage        `json:"header,omitempty"`
	Body   *model.InteractiveText `json:"body,omitempty"`
	Footer *model.InteractiveText `json:"footer,omitempty"`
	Action json.RawMessage        `json:"action,omitempty"`
}

type templateBody struct {
	Name       string                 `json:"name"`
	Language   model.TemplateLanguage `json:"language"`
	Components json.RawMessage        `json:"components,omitempty"`
}

type reactionBody struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// BuildSendRequest maps content onto the provider payload for recipient to.
// replyTo, when set, quotes an earlier provider message.
func BuildSendRequest(to string, content model.Content, replyTo string) (*SendRequest, error) {
	req := &SendRequest{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               to,
	}
	if replyTo != "" {
		req.Context = &replyContext{MessageID: replyTo}
	}

	switch c := content.(type) {
	case model.TextContent:
		req.Type = "text"
		req.Text = &textBody{PreviewURL: true, Body: c.Body}
	case model.ImageContent:
		req.Type = "image"
		req.Image = media(c.MediaRef, true, false)
	case model.VideoContent:
		req.Type = "video"
		req.Video = media(c.MediaRef, true, false)
	case model.AudioContent:
		req.Type = "audio"
		req.Audio = media(c.MediaRef, false, false)
	case model.DocumentContent:
		req.Type = "document"
		req.Document = media(c.MediaRef, true, true)
	case model.StickerContent:
		req.Type = "sticker"
		req.Sticker = media(c.MediaRef, false, false)
	case model.LocationContent:
		req.Type = "location"
		req.Location = &locationBody{Latitude: c.Latitude, Longitude: c.Longitude, Name: c.Name, Address: c.Address}
	case model.ContactsContent:
		req.Type = "contacts"
		req.Contacts = c.Contacts
	case model.InteractiveContent:
		req.Type = "interactive"
		req.Interactive = &interactive{Type: c.Type, Header: c.Header, Body: c.Body, Footer: c.Footer, Action: c.Action}
	case model.TemplateContent:
		req.Type = "template"
		req.Template = &templateBody{Name: c.Name, Language: c.Language, Components: c.Components}
	case model.ReactionContent:
		req.Type = "reaction"
		req.Reaction = &reactionBody{MessageID: c.MessageID, Emoji: c.Emoji}
	default:
		return nil, fmt.Errorf("%w: unsupported outbound content %T", apperrors.ErrBadRequest, content)
	}

	if ref, ok := model.MediaOf(content); ok && !ref.HasSource() {
		return nil, fmt.Errorf("%w: %s needs a media id or link", apperrors.ErrBadRequest, req.Type)
	}
	return req, nil
}

// media prefers an uploaded id over a public link.
func media(ref model.MediaRef, withCaption, withFilename bool) *mediaBody {
	b := &mediaBody{}
	if ref.MediaID != "" {
		b.ID = ref.MediaID
	} else {
		b.Link = ref.URL
	}
	if withCaption {
		b.Caption = ref.Caption
	}
	if withFilename {
		b.Filename = ref.Filename
	}
	return b
}
