package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/model"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
)

type pageQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

type conversationListQuery struct {
	pageQuery
	Status     string `form:"status"`
	AssignedTo string `form:"assignedToId"`
	Search     string `form:"search"`
}

type messageListQuery struct {
	pageQuery
	Before string `form:"before"`
}

// HistoryHandler serves the read endpoints clients resync from.
type HistoryHandler struct {
	history HistoryReader
}

// NewHistoryHandler creates the handler.
func NewHistoryHandler(history HistoryReader) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListConversations handles GET /api/v1/conversations.
func (h *HistoryHandler) ListConversations(c *gin.Context) {
	var q conversationListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, fmt.Errorf("%w: invalid query: %v", apperrors.ErrBadRequest, err))
		return
	}

	page, err := h.history.ListConversations(c.Request.Context(), storage.ConversationFilter{
		Page:       storage.Page{Page: q.Page, Limit: q.Limit},
		Status:     model.ConversationStatus(strings.ToUpper(q.Status)),
		AssignedTo: q.AssignedTo,
		Search:     q.Search,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetConversation handles GET /api/v1/conversations/:id.
func (h *HistoryHandler) GetConversation(c *gin.Context) {
	conv, err := h.history.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListMessages handles GET /api/v1/conversations/:id/messages.
func (h *HistoryHandler) ListMessages(c *gin.Context) {
	var q messageListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, fmt.Errorf("%w: invalid query: %v", apperrors.ErrBadRequest, err))
		return
	}

	page, err := h.history.ListMessages(c.Request.Context(), c.Param("id"), storage.MessageFilter{
		Page:   storage.Page{Page: q.Page, Limit: q.Limit},
		Before: q.Before,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
