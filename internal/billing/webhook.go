package billing

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79/webhook"
)

// maxWebhookBody bounds the payload read before signature verification
const maxWebhookBody = 65536

// WebhookHandler receives signed Stripe events
type WebhookHandler struct {
	svc    *Service
	secret string
}

// NewWebhookHandler creates a WebhookHandler that verifies events with secret
func NewWebhookHandler(svc *Service, secret string) *WebhookHandler {
	return &WebhookHandler{svc: svc, secret: secret}
}

// Handle verifies the Stripe-Signature header and applies the event
func (h *WebhookHandler) Handle(c *gin.Context) {
	if h.secret == "" {
		slog.Error("Stripe webhook received but STRIPE_WEBHOOK_SECRET is not set")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Webhook not configured"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		slog.Warn("Webhook signature verification failed", "error", err)
		c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
		return
	}

	applied, err := h.svc.ApplyEvent(c.Request.Context(), event)
	if err != nil {
		slog.Error("Webhook processing error", "event_id", event.ID, "type", event.Type, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": !applied})
}
