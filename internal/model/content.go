package model

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// Content is the typed payload of a message. Each MessageType has exactly one
// variant; UnknownContent keeps payloads of types this service does not model.
type Content interface {
	MessageType() MessageType
}

// TextContent is a plain text message.
type TextContent struct {
	Body       string `json:"body" validate:"required"`
	PreviewURL bool   `json:"previewUrl,omitempty"`
}

// MediaRef points at a binary attachment, either an uploaded provider media
// id or a public link.
type MediaRef struct {
	MediaID  string `json:"mediaId,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// HasSource reports whether the reference can be resolved by the provider.
func (r MediaRef) HasSource() bool {
	return r.MediaID != "" || r.URL != ""
}

type (
	ImageContent    struct{ MediaRef }
	VideoContent    struct{ MediaRef }
	AudioContent    struct{ MediaRef }
	DocumentContent struct{ MediaRef }
	StickerContent  struct{ MediaRef }
)

// LocationContent is a shared map pin.
type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ContactsContent carries vCard-like contact cards in the provider's shape.
type ContactsContent struct {
	Contacts json.RawMessage `json:"contacts"`
}

// InteractiveReply is the option a user picked on a button or list message.
type InteractiveReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// InteractiveText is the {text: ...} object used for body and footer.
type InteractiveText struct {
	Text string `json:"text"`
}

// InteractiveContent covers both outbound button/list messages (Header, Body,
// Footer, Action) and the inbound replies to them (ButtonReply, ListReply).
type InteractiveContent struct {
	Type        string            `json:"type"`
	Header      json.RawMessage   `json:"header,omitempty"`
	Body        *InteractiveText  `json:"body,omitempty"`
	Footer      *InteractiveText  `json:"footer,omitempty"`
	Action      json.RawMessage   `json:"action,omitempty"`
	ButtonReply *InteractiveReply `json:"buttonReply,omitempty"`
	ListReply   *InteractiveReply `json:"listReply,omitempty"`
}

// TemplateLanguage selects the translation of a template.
type TemplateLanguage struct {
	Code string `json:"code"`
}

// TemplateContent references a pre-approved template.
type TemplateContent struct {
	Name       string           `json:"name" validate:"required"`
	Language   TemplateLanguage `json:"language"`
	Components json.RawMessage  `json:"components,omitempty"`
}

// ReactionContent is an emoji reaction to another message.
type ReactionContent struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// UnknownContent preserves the raw provider message for unsupported types.
type UnknownContent struct {
	Raw json.RawMessage `json:"raw"`
}

func (TextContent) MessageType() MessageType        { return MessageTypeText }
func (ImageContent) MessageType() MessageType       { return MessageTypeImage }
func (VideoContent) MessageType() MessageType       { return MessageTypeVideo }
func (AudioContent) MessageType() MessageType       { return MessageTypeAudio }
func (DocumentContent) MessageType() MessageType    { return MessageTypeDocument }
func (StickerContent) MessageType() MessageType     { return MessageTypeSticker }
func (LocationContent) MessageType() MessageType    { return MessageTypeLocation }
func (ContactsContent) MessageType() MessageType    { return MessageTypeContacts }
func (InteractiveContent) MessageType() MessageType { return MessageTypeInteractive }
func (TemplateContent) MessageType() MessageType    { return MessageTypeTemplate }
func (ReactionContent) MessageType() MessageType    { return MessageTypeReaction }
func (UnknownContent) MessageType() MessageType     { return MessageTypeUnknown }

// MediaOf returns the attachment reference of a media variant.
func MediaOf(c Content) (MediaRef, bool) {
	switch v := c.(type) {
	case ImageContent:
		return v.MediaRef, true
	case VideoContent:
		return v.MediaRef, true
	case AudioContent:
		return v.MediaRef, true
	case DocumentContent:
		return v.MediaRef, true
	case StickerContent:
		return v.MediaRef, true
	}
	return MediaRef{}, false
}

// NewMediaContent builds the media variant for t around ref.
func NewMediaContent(t MessageType, ref MediaRef) (Content, error) {
	switch t {
	case MessageTypeImage:
		return ImageContent{ref}, nil
	case MessageTypeVideo:
		return VideoContent{ref}, nil
	case MessageTypeAudio:
		return AudioContent{ref}, nil
	case MessageTypeDocument:
		return DocumentContent{ref}, nil
	case MessageTypeSticker:
		return StickerContent{ref}, nil
	}
	return nil, fmt.Errorf("message type %s has no media", t)
}

// DecodeContent unmarshals raw into the variant selected by t. Unknown types
// and UNKNOWN itself decode into UnknownContent.
func DecodeContent(t MessageType, raw []byte) (Content, error) {
	var (
		c   Content
		err error
	)
	switch t {
	case MessageTypeText:
		c, err = decodeAs[TextContent](raw)
	case MessageTypeImage:
		c, err = decodeAs[ImageContent](raw)
	case MessageTypeVideo:
		c, err = decodeAs[VideoContent](raw)
	case MessageTypeAudio:
		c, err = decodeAs[AudioContent](raw)
	case MessageTypeDocument:
		c, err = decodeAs[DocumentContent](raw)
	case MessageTypeSticker:
		c, err = decodeAs[StickerContent](raw)
	case MessageTypeLocation:
		c, err = decodeAs[LocationContent](raw)
	case MessageTypeContacts:
		c, err = decodeAs[ContactsContent](raw)
	case MessageTypeInteractive:
		c, err = decodeAs[InteractiveContent](raw)
	case MessageTypeTemplate:
		c, err = decodeAs[TemplateContent](raw)
	case MessageTypeReaction:
		c, err = decodeAs[ReactionContent](raw)
	default:
		c, err = decodeAs[UnknownContent](raw)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s content: %w", t, err)
	}
	return c, nil
}

func decodeAs[T Content](raw []byte) (Content, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeContent marshals c for the jsonb content column.
func EncodeContent(c Content) (datatypes.JSON, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s content: %w", c.MessageType(), err)
	}
	return datatypes.JSON(b), nil
}
