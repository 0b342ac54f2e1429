package webhook

import (
	"encoding/json"
	"fmt"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/validator"
)

// Cloud API webhook constants.
const (
	ObjectWhatsAppBusinessAccount = "whatsapp_business_account"
	FieldMessages                 = "messages"
)

// Envelope is the top level of a webhook POST body.
type Envelope struct {
	Object string  `json:"object" validate:"required"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes of one business account. Raw keeps the entry
// bytes as received for the audit log.
type Entry struct {
	ID      string          `json:"id"`
	Changes []Change        `json:"changes"`
	Raw     json.RawMessage `json:"-"`
	// DecodeErr is set when the entry could not be decoded; Raw is still populated.
	DecodeErr error `json:"-"`
}

// Change is one field update inside an entry.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the messages and statuses for one phone number.
// Messages and statuses stay raw so one malformed item cannot sink its siblings.
type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []WireContact     `json:"contacts,omitempty"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

// Metadata identifies the receiving business phone number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WireContact is the sender profile attached to inbound messages.
type WireContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

// WireMessage is an inbound message as sent by the provider.
type WireMessage struct {
	From        string                 `json:"from"`
	ID          string                 `json:"id"`
	Timestamp   string                 `json:"timestamp"`
	Type        string                 `json:"type"`
	Text        *WireText              `json:"text,omitempty"`
	Image       *WireMedia             `json:"image,omitempty"`
	Video       *WireMedia             `json:"video,omitempty"`
	Audio       *WireMedia             `json:"audio,omitempty"`
	Document    *WireMedia             `json:"document,omitempty"`
	Sticker     *WireMedia             `json:"sticker,omitempty"`
	Location    *model.LocationContent `json:"location,omitempty"`
	Contacts    json.RawMessage        `json:"contacts,omitempty"`
	Interactive *WireInteractive       `json:"interactive,omitempty"`
	Button      *WireButton            `json:"button,omitempty"`
	Reaction    *WireReaction          `json:"reaction,omitempty"`
	Context     *WireContext           `json:"context,omitempty"`
}

type WireText struct {
	Body string `json:"body"`
}

type WireMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type WireInteractive struct {
	Type        string                  `json:"type"`
	ButtonReply *model.InteractiveReply `json:"button_reply,omitempty"`
	ListReply   *model.InteractiveReply `json:"list_reply,omitempty"`
}

// WireButton is the reply to a template quick-reply button.
type WireButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type WireReaction struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type WireContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

// WireStatus is a delivery report for an outbound message.
type WireStatus struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Timestamp   string      `json:"timestamp"`
	RecipientID string      `json:"recipient_id"`
	Errors      []WireError `json:"errors,omitempty"`
}

type WireError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// rawEnvelope defers entry decoding so each entry keeps its own bytes.
type rawEnvelope struct {
	Object string            `json:"object" validate:"required"`
	Entry  []json.RawMessage `json:"entry"`
}

// Parse decodes a webhook body. Only an undecodable body or a missing object
// field is an error; a malformed entry is returned with DecodeErr set.
func Parse(body []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: webhook body: %w", apperrors.ErrBadRequest, err)
	}
	if err := validator.Validate(raw); err != nil {
		return nil, err
	}

	env := &Envelope{Object: raw.Object, Entry: make([]Entry, 0, len(raw.Entry))}
	for _, rawEntry := range raw.Entry {
		var e Entry
		if err := json.Unmarshal(rawEntry, &e); err != nil {
			e = Entry{DecodeErr: err}
		}
		e.Raw = rawEntry
		env.Entry = append(env.Entry, e)
	}
	return env, nil
}

// PhoneNumberIDs returns every distinct phone_number_id named in body, in
// payload order. It is used to pick the signing secrets before the body has
// been authenticated.
func PhoneNumberIDs(body []byte) []string {
	var peek struct {
		Entry []struct {
			Changes []struct {
				Value struct {
					Metadata Metadata `json:"metadata"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		return nil
	}
	var ids []string
	seen := make(map[string]struct{})
	for _, e := range peek.Entry {
		for _, c := range e.Changes {
			id := c.Value.Metadata.PhoneNumberID
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
