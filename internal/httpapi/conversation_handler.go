package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/validator"
)

type statusRequest struct {
	Status model.ConversationStatus `json:"status" validate:"required,conversation_status"`
}

type assignRequest struct {
	// AssigneeID is the agent to assign; null or "" unassigns.
	AssigneeID *string `json:"assigneeId"`
}

// ConversationHandler serves conversation management endpoints.
type ConversationHandler struct {
	conversations ConversationManager
}

// NewConversationHandler creates the handler.
func NewConversationHandler(conversations ConversationManager) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// UpdateStatus handles PATCH /api/v1/conversations/:id/status.
func (h *ConversationHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: invalid body: %v", apperrors.ErrBadRequest, err))
		return
	}
	req.Status = model.ConversationStatus(strings.ToUpper(string(req.Status)))
	if err := validator.Validate(req); err != nil {
		abortWithError(c, err)
		return
	}

	conv, err := h.conversations.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Assign handles PATCH /api/v1/conversations/:id/assign.
func (h *ConversationHandler) Assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: invalid body: %v", apperrors.ErrBadRequest, err))
		return
	}

	conv, err := h.conversations.Assign(c.Request.Context(), c.Param("id"), req.AssigneeID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// MarkAsRead handles POST /api/v1/conversations/:id/read.
func (h *ConversationHandler) MarkAsRead(c *gin.Context) {
	conv, err := h.conversations.MarkAsRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}
