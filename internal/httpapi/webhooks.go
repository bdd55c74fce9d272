package httpapi

import (
	"io"
	"net/http"

	"github.com/convert-iq/convertiq/internal/billing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// webhookMaxBodyBytes caps webhook payload reads.
const webhookMaxBodyBytes = int64(65536)

// WebhookHandler receives payment-processor events.
type WebhookHandler struct {
	syncer *billing.Syncer
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(syncer *billing.Syncer) *WebhookHandler {
	return &WebhookHandler{syncer: syncer}
}

// Stripe verifies and applies a Stripe webhook delivery. Signature
// failures get a 400 so Stripe retries with a correct secret;
// processing failures get a 500 so Stripe redelivers.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	body, errRead := io.ReadAll(io.LimitReader(c.Request.Body, webhookMaxBodyBytes))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing Stripe signature"})
		return
	}

	event, errVerify := h.syncer.VerifyEvent(body, sigHeader)
	if errVerify != nil {
		log.WithError(errVerify).Warn("stripe webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Stripe signature"})
		return
	}

	if errHandle := h.syncer.HandleEvent(c.Request.Context(), event); errHandle != nil {
		log.WithError(errHandle).WithField("event_id", event.ID).Error("stripe webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
