package httpapi

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/ingestion"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/storage"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/webhook"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/utils"
)

const eventReceived = "EVENT_RECEIVED"

// WebhookOptions carries the process-wide webhook credentials.
type WebhookOptions struct {
	VerifyToken  string
	AppSecret    string
	MaxBodyBytes int64
}

// WebhookHandler serves the provider callback endpoint.
type WebhookHandler struct {
	opts          WebhookOptions
	organizations storage.OrganizationRepo
	dispatcher    ingestion.DispatcherInterface
}

// NewWebhookHandler creates the handler. organizations resolves per-tenant
// verify tokens and secrets.
func NewWebhookHandler(opts WebhookOptions, organizations storage.OrganizationRepo, dispatcher ingestion.DispatcherInterface) *WebhookHandler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}
	return &WebhookHandler{opts: opts, organizations: organizations, dispatcher: dispatcher}
}

// Verify answers the subscription handshake.
func (h *WebhookHandler) Verify(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token == "" || !h.knownVerifyToken(c, token) {
		observer.IncWebhookRequest(http.MethodGet, "forbidden")
		log.Warn("Webhook verification rejected", zap.String("mode", mode))
		c.String(http.StatusForbidden, "Forbidden")
		return
	}

	observer.IncWebhookRequest(http.MethodGet, "verified")
	log.Info("Webhook verified")
	c.String(http.StatusOK, challenge)
}

func (h *WebhookHandler) knownVerifyToken(c *gin.Context, token string) bool {
	if h.opts.VerifyToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.opts.VerifyToken)) == 1 {
		return true
	}
	_, err := h.organizations.FindByVerifyToken(c.Request.Context(), token)
	return err == nil
}

// Receive authenticates the body and acknowledges it before processing.
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		status := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		observer.IncWebhookRequest(http.MethodPost, "unreadable")
		log.Warn("Webhook body unreadable", zap.Error(err))
		c.String(status, http.StatusText(status))
		return
	}

	secrets, err := h.secretsFor(c, body)
	if err != nil {
		observer.IncWebhookRequest(http.MethodPost, "secret_lookup_failed")
		log.Error("Webhook secret lookup failed", zap.Error(err))
		c.String(http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
		return
	}
	header := c.GetHeader(webhook.SignatureHeader)
	for _, secret := range secrets {
		if err := webhook.ValidateSignature(body, header, secret); err != nil {
			observer.IncWebhookRequest(http.MethodPost, "invalid_signature")
			log.Warn("Webhook signature rejected",
				zap.Error(err),
				zap.String("size", utils.ByteCountSI(int64(len(body)))),
			)
			c.String(http.StatusBadRequest, "Invalid signature")
			return
		}
	}

	h.dispatcher.Submit(ingestion.Task{Ctx: ctx, Body: body, ReceivedAt: time.Now()})
	observer.IncWebhookRequest(http.MethodPost, "accepted")
	c.String(http.StatusOK, eventReceived)
}

// secretsFor returns the secrets the body must be signed with. The app
// secret covers every tenant; otherwise each organization named in the body
// that has a secret contributes it, so one unconfigured phone number cannot
// carry changes for a tenant that does sign. Unknown phone numbers add
// nothing; their changes are dropped during processing.
func (h *WebhookHandler) secretsFor(c *gin.Context, body []byte) ([]string, error) {
	if h.opts.AppSecret != "" {
		return []string{h.opts.AppSecret}, nil
	}
	var secrets []string
	for _, phoneNumberID := range webhook.PhoneNumberIDs(body) {
		org, err := h.organizations.FindByPhoneNumberID(c.Request.Context(), phoneNumberID)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve secret for %s: %w", phoneNumberID, err)
		}
		if org.WebhookSecret != "" {
			secrets = append(secrets, org.WebhookSecret)
		}
	}
	return secrets, nil
}
