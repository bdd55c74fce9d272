package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/convert-iq/convertiq/internal/ai"
	"github.com/convert-iq/convertiq/internal/billing"
	"github.com/convert-iq/convertiq/internal/plans"
	"github.com/convert-iq/convertiq/internal/usage"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OptimizeHandler serves the quota-metered optimization endpoint.
type OptimizeHandler struct {
	db        *gorm.DB
	ledger    *usage.Ledger
	generator ai.Generator
	nowFn     func() time.Time
}

// NewOptimizeHandler constructs an OptimizeHandler.
func NewOptimizeHandler(db *gorm.DB, ledger *usage.Ledger, generator ai.Generator) *OptimizeHandler {
	return &OptimizeHandler{db: db, ledger: ledger, generator: generator, nowFn: time.Now}
}

// optimizeRequest defines the request body for optimization runs.
type optimizeRequest struct {
	ProductInfo string `json:"product_info"`
}

// Optimize runs a single metered optimization. The plan is resolved
// from the caller's active subscriptions and usage is incremented only
// after the generation succeeds.
func (h *OptimizeHandler) Optimize(c *gin.Context) {
	user := contextUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var body optimizeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	productInfo := strings.TrimSpace(body.ProductInfo)
	if productInfo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing product_info"})
		return
	}

	ctx := c.Request.Context()
	now := h.nowFn()

	subs, errSubs := billing.ActiveSubscriptions(ctx, h.db, user.ID, now)
	if errSubs != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription lookup failed"})
		return
	}
	plan := plans.Resolve(subs)
	periodStart, periodEnd := billingPeriod(subs, now)

	used, errUsed := h.ledger.UsedForPeriod(ctx, user.ID, periodStart, periodEnd)
	if errUsed != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "usage lookup failed"})
		return
	}
	if !plan.Unlimited() && used >= *plan.Optimizations {
		c.JSON(http.StatusForbidden, gin.H{"error": "Monthly optimization limit reached"})
		return
	}

	optimized, errGen := h.generator.Generate(ctx, ai.AnalysisPrompt(productInfo), ai.TemperatureAnalysis)
	if errGen != nil {
		log.WithError(errGen).WithField("user_id", user.ID).Error("optimization generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errGen.Error()})
		return
	}

	newUsed, errInc := h.ledger.Increment(ctx, user.ID, plan, periodStart, periodEnd)
	if errInc != nil {
		if errors.Is(errInc, usage.ErrQuotaExceeded) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Monthly optimization limit reached"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "usage update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": gin.H{"optimized_text": optimized},
		"usage": gin.H{
			"used":      newUsed,
			"remaining": remainingJSON(plan, newUsed),
		},
	})
}
