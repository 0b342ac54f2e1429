package httpapi

import (
	"github.com/gin-gonic/gin"
)

// Handlers are the endpoint groups mounted by NewRouter.
type Handlers struct {
	Webhook       *WebhookHandler
	Messages      *MessageHandler
	Conversations *ConversationHandler
	History       *HistoryHandler
	Realtime      *RealtimeHandler
	Verifier      *TokenVerifier
}

// NewRouter builds the gin engine with every public route.
func NewRouter(h Handlers) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestID(), Recovery(), AccessLog())

	engine.GET("/webhook", h.Webhook.Verify)
	engine.POST("/webhook", h.Webhook.Receive)

	auth := AuthMiddleware(h.Verifier)
	engine.GET("/ws", auth, h.Realtime.Connect)

	v1 := engine.Group("/api/v1", auth)
	{
		v1.GET("/conversations", h.History.ListConversations)

		conversations := v1.Group("/conversations/:id")
		conversations.GET("", h.History.GetConversation)
		conversations.GET("/messages", h.History.ListMessages)
		conversations.POST("/messages", h.Messages.Send)
		conversations.POST("/media", h.Messages.SendMedia)
		conversations.PATCH("/status", h.Conversations.UpdateStatus)
		conversations.PATCH("/assign", h.Conversations.Assign)
		conversations.POST("/read", h.Conversations.MarkAsRead)

		v1.GET("/messages/:id/media", h.Messages.Media)
	}
	return engine
}
