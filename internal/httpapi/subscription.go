package httpapi

import (
	"net/http"
	"time"

	"github.com/convert-iq/convertiq/internal/billing"
	"github.com/convert-iq/convertiq/internal/models"
	"github.com/convert-iq/convertiq/internal/plans"
	"github.com/convert-iq/convertiq/internal/usage"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SubscriptionHandler serves the subscription and usage snapshot.
type SubscriptionHandler struct {
	db     *gorm.DB
	ledger *usage.Ledger
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(db *gorm.DB, ledger *usage.Ledger) *SubscriptionHandler {
	return &SubscriptionHandler{db: db, ledger: ledger}
}

// planJSON renders a plan for API responses.
func planJSON(plan plans.Plan) gin.H {
	var optimizations any = "unlimited"
	if plan.Optimizations != nil {
		optimizations = *plan.Optimizations
	}
	return gin.H{
		"id":   plan.ID,
		"name": plan.Name,
		"limits": gin.H{
			"optimizations_per_period": optimizations,
			"csv_export":               plan.CSVExport,
			"cro_audit":                plan.CROAudit,
			"ad_hooks":                 plan.AdHooks,
		},
	}
}

// remainingJSON renders the quota left, with unlimited plans reported
// as a string sentinel rather than a negative number.
func remainingJSON(plan plans.Plan, used int) any {
	if plan.Unlimited() {
		return "unlimited"
	}
	return plan.Remaining(used)
}

// Me returns the caller's current subscription, plan, and
// billing-period usage. Users without a relevant subscription get the
// free-tier snapshot.
func (h *SubscriptionHandler) Me(c *gin.Context) {
	user := contextUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	ctx := c.Request.Context()

	sub, errFind := billing.CurrentSubscription(ctx, h.db, user.ID)
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if sub == nil {
		c.JSON(http.StatusOK, gin.H{
			"has_subscription": false,
			"status":           "free",
			"plan":             planJSON(plans.Free),
			"billing":          nil,
			"usage": gin.H{
				"used":      0,
				"remaining": *plans.Free.Optimizations,
				"resets_at": nil,
			},
		})
		return
	}

	plan := plans.ByPriceID(sub.StripePriceID)

	used := 0
	if sub.CurrentPeriodStart != nil && sub.CurrentPeriodEnd != nil {
		var errUsed error
		used, errUsed = h.ledger.UsedForPeriod(ctx, user.ID, *sub.CurrentPeriodStart, *sub.CurrentPeriodEnd)
		if errUsed != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "usage lookup failed"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"has_subscription": true,
		"status":           sub.Status,
		"plan":             planJSON(plan),
		"billing": gin.H{
			"renews_at":            sub.CurrentPeriodEnd,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
		},
		"usage": gin.H{
			"used":      used,
			"remaining": remainingJSON(plan, used),
			"resets_at": sub.CurrentPeriodEnd,
		},
	})
}

// billingPeriod returns the usage-accounting window: the subscription's
// current period when its bounds are known, else the current UTC
// calendar month.
func billingPeriod(subs []models.Subscription, now time.Time) (time.Time, time.Time) {
	for _, sub := range subs {
		if sub.CurrentPeriodStart != nil && sub.CurrentPeriodEnd != nil {
			return sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC()
		}
	}
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
