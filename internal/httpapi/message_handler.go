package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/usecase"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/validator"
)

// sendMessageRequest is the body of POST /conversations/:id/messages.
type sendMessageRequest struct {
	Type    model.MessageType `json:"type" validate:"required,message_type"`
	Content json.RawMessage   `json:"content" validate:"required"`
	ReplyTo string            `json:"replyTo,omitempty"`
}

// MessageHandler serves outbound message endpoints.
type MessageHandler struct {
	sender Sender
	media  MediaFetcher
}

// NewMessageHandler creates the handler.
func NewMessageHandler(sender Sender, media MediaFetcher) *MessageHandler {
	return &MessageHandler{sender: sender, media: media}
}

// Send handles POST /api/v1/conversations/:id/messages.
func (h *MessageHandler) Send(c *gin.Context) {
	claims, err := claimsFrom(c)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err))
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: invalid body: %v", apperrors.ErrBadRequest, err))
		return
	}
	req.Type = model.MessageType(strings.ToUpper(string(req.Type)))
	if err := validator.Validate(req); err != nil {
		abortWithError(c, err)
		return
	}
	content, err := model.DecodeContent(req.Type, req.Content)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err))
		return
	}

	msg, err := h.sender.Send(c.Request.Context(), usecase.SendInput{
		ConversationID: c.Param("id"),
		Content:        content,
		ReplyTo:        req.ReplyTo,
		UserID:         claims.Subject,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SendMedia handles multipart POST /api/v1/conversations/:id/media with
// fields file, type, caption and replyTo.
func (h *MessageHandler) SendMedia(c *gin.Context) {
	claims, err := claimsFrom(c)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err))
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: no file provided", apperrors.ErrBadRequest))
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	msgType := model.MessageType(strings.ToUpper(c.PostForm("type")))
	if msgType == "" {
		msgType = mediaTypeFor(mimeType)
	}

	msg, err := h.sender.SendMedia(c.Request.Context(), usecase.MediaInput{
		ConversationID: c.Param("id"),
		Type:           msgType,
		File:           file,
		Filename:       header.Filename,
		MimeType:       mimeType,
		Caption:        c.PostForm("caption"),
		ReplyTo:        c.PostForm("replyTo"),
		UserID:         claims.Subject,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Media handles GET /api/v1/messages/:id/media.
func (h *MessageHandler) Media(c *gin.Context) {
	stream, err := h.media.Fetch(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer stream.Body.Close()

	headers := map[string]string{}
	if stream.Filename != "" {
		headers["Content-Disposition"] = fmt.Sprintf("inline; filename=%q", stream.Filename)
	}
	length := stream.ContentLength
	if length <= 0 {
		length = -1
	}
	c.DataFromReader(http.StatusOK, length, stream.ContentType, stream.Body, headers)
}

// mediaTypeFor guesses the message type of an upload from its mime type.
func mediaTypeFor(mimeType string) model.MessageType {
	switch {
	case mimeType == "image/webp":
		return model.MessageTypeSticker
	case strings.HasPrefix(mimeType, "image/"):
		return model.MessageTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return model.MessageTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return model.MessageTypeAudio
	default:
		return model.MessageTypeDocument
	}
}
