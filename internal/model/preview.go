package model

import "unicode/utf8"

// OutboundPreviewLimit caps the preview stored for outbound echoes.
const OutboundPreviewLimit = 100

// Preview derives the conversation list label for a message. Text is
// returned verbatim; every other type maps to a fixed label.
func Preview(c Content) string {
	switch v := c.(type) {
	case TextContent:
		return v.Body
	case ImageContent:
		return "Image"
	case VideoContent:
		return "Video"
	case AudioContent:
		return "Audio"
	case DocumentContent:
		if v.Filename != "" {
			return "Document: " + v.Filename
		}
		return "Document"
	case StickerContent:
		return "Sticker"
	case LocationContent:
		return "Location"
	case ContactsContent:
		return "Contact"
	case InteractiveContent:
		switch {
		case v.Body != nil && v.Body.Text != "":
			return v.Body.Text
		case v.ButtonReply != nil && v.ButtonReply.Title != "":
			return v.ButtonReply.Title
		case v.ListReply != nil && v.ListReply.Title != "":
			return v.ListReply.Title
		}
		return "Interactive message"
	case TemplateContent:
		return "Template"
	case ReactionContent:
		if v.Emoji != "" {
			return "Reaction: " + v.Emoji
		}
		return "Reaction"
	}
	return "Message"
}

// TruncatePreview shortens s to at most limit runes.
func TruncatePreview(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
