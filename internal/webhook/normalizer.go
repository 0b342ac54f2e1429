package webhook

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

const defaultMimeType = "application/octet-stream"

// EventKind distinguishes the two event shapes inside a change.
type EventKind string

const (
	KindMessage EventKind = "message"
	KindStatus  EventKind = "status"
)

// InboundMessage is the canonical form of a message received from a contact.
type InboundMessage struct {
	Wamid        string
	From         string
	ProfileName  string
	Type         model.MessageType
	Content      model.Content
	Media        *model.MediaRef
	MediaKind    string // provider field the attachment came from, e.g. "image"
	ContextWamid string
	Timestamp    time.Time
}

// StatusEvent is the canonical form of a delivery report.
type StatusEvent struct {
	Wamid        string
	RecipientID  string
	Status       model.MessageStatus
	Timestamp    time.Time
	ErrorCode    *string
	ErrorMessage *string
}

// Event is either a message or a status, tagged by Kind.
type Event struct {
	Kind    EventKind
	Message *InboundMessage
	Status  *StatusEvent
}

// ChangeBatch holds the events of one change block together with the key
// used to resolve its organization.
type ChangeBatch struct {
	EntryID            string
	PhoneNumberID      string
	DisplayPhoneNumber string
	Events             []Event
	// Skipped counts items without an id or with an unknown status value.
	Skipped int
}

var messageTypes = map[string]model.MessageType{
	"text":        model.MessageTypeText,
	"image":       model.MessageTypeImage,
	"video":       model.MessageTypeVideo,
	"audio":       model.MessageTypeAudio,
	"document":    model.MessageTypeDocument,
	"sticker":     model.MessageTypeSticker,
	"location":    model.MessageTypeLocation,
	"contacts":    model.MessageTypeContacts,
	"interactive": model.MessageTypeInteractive,
	"button":      model.MessageTypeInteractive,
	"reaction":    model.MessageTypeReaction,
}

var statusValues = map[string]model.MessageStatus{
	"sent":      model.MessageStatusSent,
	"delivered": model.MessageStatusDelivered,
	"read":      model.MessageStatusRead,
	"failed":    model.MessageStatusFailed,
}

// Normalize flattens every "messages" change of env into batches, keeping
// payload order. Other change fields are ignored.
func Normalize(env *Envelope) []ChangeBatch {
	var batches []ChangeBatch
	for _, e := range env.Entry {
		batches = append(batches, NormalizeEntry(e, time.Now().UTC())...)
	}
	return batches
}

// NormalizeEntry converts the changes of one entry. now stands in for
// missing or malformed timestamps.
func NormalizeEntry(e Entry, now time.Time) []ChangeBatch {
	batches := make([]ChangeBatch, 0, len(e.Changes))
	for _, ch := range e.Changes {
		if ch.Field != FieldMessages {
			continue
		}
		v := ch.Value
		batch := ChangeBatch{
			EntryID:            e.ID,
			PhoneNumberID:      v.Metadata.PhoneNumberID,
			DisplayPhoneNumber: v.Metadata.DisplayPhoneNumber,
		}

		profiles := make(map[string]string, len(v.Contacts))
		for _, c := range v.Contacts {
			profiles[c.WaID] = c.Profile.Name
		}

		for _, raw := range v.Messages {
			msg, ok := NormalizeMessage(raw, profiles, now)
			if !ok {
				batch.Skipped++
				continue
			}
			batch.Events = append(batch.Events, Event{Kind: KindMessage, Message: msg})
		}
		for _, raw := range v.Statuses {
			st, ok := NormalizeStatus(raw, now)
			if !ok {
				batch.Skipped++
				continue
			}
			batch.Events = append(batch.Events, Event{Kind: KindStatus, Status: st})
		}
		batches = append(batches, batch)
	}
	return batches
}

// NormalizeMessage maps one wire message onto its content variant. Messages
// that do not decode, or whose type is not modelled, become UNKNOWN with the
// raw bytes preserved. ok is false only when no message id can be recovered.
func NormalizeMessage(raw json.RawMessage, profiles map[string]string, now time.Time) (*InboundMessage, bool) {
	var wm WireMessage
	if err := json.Unmarshal(raw, &wm); err != nil {
		// salvage the identifying fields so the message is still stored once
		var head struct {
			From      string `json:"from"`
			ID        string `json:"id"`
			Timestamp string `json:"timestamp"`
		}
		if json.Unmarshal(raw, &head) != nil || head.ID == "" {
			return nil, false
		}
		wm = WireMessage{From: head.From, ID: head.ID, Timestamp: head.Timestamp}
	}
	if wm.ID == "" {
		return nil, false
	}

	msg := &InboundMessage{
		Wamid:       wm.ID,
		From:        wm.From,
		ProfileName: profiles[wm.From],
		Timestamp:   utils.ParseUnixString(wm.Timestamp, now),
	}
	if wm.Context != nil {
		msg.ContextWamid = wm.Context.ID
	}

	msg.Type, msg.Content = contentOf(&wm, raw)
	if ref, ok := model.MediaOf(msg.Content); ok && ref.MediaID != "" {
		msg.Media = &ref
		msg.MediaKind = strings.ToLower(wm.Type)
	} else if kind, ref := firstMedia(&wm); ref != nil {
		// first media field wins, at most one attachment per message
		msg.Media = ref
		msg.MediaKind = kind
	}
	return msg, true
}

func contentOf(wm *WireMessage, raw json.RawMessage) (model.MessageType, model.Content) {
	unknown := model.UnknownContent{Raw: append(json.RawMessage(nil), raw...)}

	kind := strings.ToLower(wm.Type)
	t, ok := messageTypes[kind]
	if !ok {
		return model.MessageTypeUnknown, unknown
	}

	switch kind {
	case "text":
		if wm.Text == nil {
			return model.MessageTypeUnknown, unknown
		}
		return t, model.TextContent{Body: wm.Text.Body}
	case "image", "video", "audio", "document", "sticker":
		wire := mediaField(wm, kind)
		if wire == nil {
			return model.MessageTypeUnknown, unknown
		}
		c, err := model.NewMediaContent(t, mediaRef(wire))
		if err != nil {
			return model.MessageTypeUnknown, unknown
		}
		return t, c
	case "location":
		if wm.Location == nil {
			return model.MessageTypeUnknown, unknown
		}
		return t, *wm.Location
	case "contacts":
		return t, model.ContactsContent{Contacts: wm.Contacts}
	case "interactive":
		if wm.Interactive == nil {
			return model.MessageTypeUnknown, unknown
		}
		return t, model.InteractiveContent{
			Type:        wm.Interactive.Type,
			ButtonReply: wm.Interactive.ButtonReply,
			ListReply:   wm.Interactive.ListReply,
		}
	case "button":
		if wm.Button == nil {
			return model.MessageTypeUnknown, unknown
		}
		return t, model.InteractiveContent{
			Type:        "button",
			ButtonReply: &model.InteractiveReply{ID: wm.Button.Payload, Title: wm.Button.Text},
		}
	case "reaction":
		if wm.Reaction == nil {
			return model.MessageTypeUnknown, unknown
		}
		return t, model.ReactionContent{MessageID: wm.Reaction.MessageID, Emoji: wm.Reaction.Emoji}
	}
	return model.MessageTypeUnknown, unknown
}

func mediaField(wm *WireMessage, kind string) *WireMedia {
	switch kind {
	case "image":
		return wm.Image
	case "video":
		return wm.Video
	case "audio":
		return wm.Audio
	case "document":
		return wm.Document
	case "sticker":
		return wm.Sticker
	}
	return nil
}

// firstMedia returns the first populated media field in provider order.
func firstMedia(wm *WireMessage) (string, *model.MediaRef) {
	for _, kind := range []string{"image", "video", "audio", "document", "sticker"} {
		if w := mediaField(wm, kind); w != nil && w.ID != "" {
			ref := mediaRef(w)
			return kind, &ref
		}
	}
	return "", nil
}

func mediaRef(w *WireMedia) model.MediaRef {
	mime := w.MimeType
	if mime == "" {
		mime = defaultMimeType
	}
	return model.MediaRef{
		MediaID:  w.ID,
		MimeType: mime,
		SHA256:   w.SHA256,
		Caption:  w.Caption,
		Filename: w.Filename,
	}
}

// NormalizeStatus maps a wire status. ok is false for reports without an id
// or with a status value this service does not track.
func NormalizeStatus(raw json.RawMessage, now time.Time) (*StatusEvent, bool) {
	var ws WireStatus
	if err := json.Unmarshal(raw, &ws); err != nil || ws.ID == "" {
		return nil, false
	}
	status, ok := statusValues[strings.ToLower(ws.Status)]
	if !ok {
		return nil, false
	}

	st := &StatusEvent{
		Wamid:       ws.ID,
		RecipientID: ws.RecipientID,
		Status:      status,
		Timestamp:   utils.ParseUnixString(ws.Timestamp, now),
	}
	if len(ws.Errors) > 0 {
		e := ws.Errors[0]
		st.ErrorCode = model.StringPtr(strconv.Itoa(e.Code))
		msg := e.Title
		if msg == "" {
			msg = e.Message
		}
		st.ErrorMessage = model.StringPtr(msg)
	}
	return st, true
}
