package httpapi

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
)

// RealtimeHandler upgrades authenticated agents to a websocket.
type RealtimeHandler struct {
	server RealtimeServer
}

// NewRealtimeHandler creates the handler.
func NewRealtimeHandler(server RealtimeServer) *RealtimeHandler {
	return &RealtimeHandler{server: server}
}

// Connect handles GET /ws. It blocks for the lifetime of the connection.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	claims, err := claimsFrom(c)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err))
		return
	}
	if err := h.server.Serve(c.Writer, c.Request, claims.OrganizationID, claims.Subject); err != nil {
		// the upgrader has already written the failure response
		logger.FromContext(c.Request.Context()).Warn("Websocket session ended with error", zap.Error(err))
	}
}
