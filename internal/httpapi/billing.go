package httpapi

import (
	"errors"
	"net/http"

	"github.com/convert-iq/convertiq/internal/billing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// BillingHandler serves outbound checkout operations.
type BillingHandler struct {
	billing *billing.Service
}

// NewBillingHandler constructs a BillingHandler.
func NewBillingHandler(billingSvc *billing.Service) *BillingHandler {
	return &BillingHandler{billing: billingSvc}
}

// checkoutRequest defines the request body for checkout creation. An
// empty plan defaults to the Starter tier.
type checkoutRequest struct {
	Plan string `json:"plan"`
}

// Checkout creates a subscription checkout session and returns its
// hosted URL.
func (h *BillingHandler) Checkout(c *gin.Context) {
	user := contextUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var body checkoutRequest
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	priceID, ok := h.billing.PriceForPlan(body.Plan)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan"})
		return
	}

	url, errCheckout := h.billing.CheckoutURL(c.Request.Context(), user, priceID)
	if errCheckout != nil {
		if errors.Is(errCheckout, billing.ErrNotConfigured) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
			return
		}
		log.WithError(errCheckout).WithField("user_id", user.ID).Error("checkout session creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}
