// Package plans defines the static subscription tiers and resolves a
// user's effective plan from their billing state.
package plans

import (
	"errors"
	"fmt"

	"github.com/convert-iq/convertiq/internal/models"
)

// Price identifiers the payment processor reports for paid tiers.
const (
	// PriceStarterMonthly is the Starter tier's monthly price ID.
	PriceStarterMonthly = "price_starter_monthly"
	// PriceGrowthMonthly is the Growth tier's monthly price ID.
	PriceGrowthMonthly = "price_growth_monthly"
)

// ErrFeatureLocked indicates the current plan does not include a feature.
var ErrFeatureLocked = errors.New("feature not available on current plan")

// Plan describes a tier's quantity limit and feature flags. It is
// static configuration, never persisted.
type Plan struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Optimizations is the per-period quota; nil means unlimited.
	Optimizations *int `json:"optimizations_per_period"`

	CSVExport bool `json:"csv_export"`
	CROAudit  bool `json:"cro_audit"`
	AdHooks   bool `json:"ad_hooks"`
}

// Unlimited reports whether the plan has no optimization quota.
func (p Plan) Unlimited() bool { return p.Optimizations == nil }

// Remaining returns the quota left after the given usage, never negative.
// Unlimited plans report -1.
func (p Plan) Remaining(used int) int {
	if p.Optimizations == nil {
		return -1
	}
	remaining := *p.Optimizations - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RequireCSVExport gates CSV export behind the plan's feature flag.
func (p Plan) RequireCSVExport() error {
	if !p.CSVExport {
		return fmt.Errorf("%w: upgrade your plan to export CSV", ErrFeatureLocked)
	}
	return nil
}

// RequireCROAudit gates audit generation behind the plan's feature flag.
func (p Plan) RequireCROAudit() error {
	if !p.CROAudit {
		return fmt.Errorf("%w: upgrade your plan to access CRO audits", ErrFeatureLocked)
	}
	return nil
}

func limit(n int) *int { return &n }

// Free is the tier applied when no active subscription exists.
var Free = Plan{
	ID:            "free",
	Name:          "Free",
	Optimizations: limit(1),
}

// Unknown is returned by ByPriceID for unrecognized price identifiers so
// display paths always have a usable, zero-limit plan object.
var Unknown = Plan{
	ID:            "unknown",
	Name:          "Unknown",
	Optimizations: limit(0),
}

// byPriceID maps processor price IDs to tier configurations.
var byPriceID = map[string]Plan{
	PriceStarterMonthly: {
		ID:            "starter",
		Name:          "Starter",
		Optimizations: limit(50),
		CSVExport:     true,
		CROAudit:      true,
		AdHooks:       true,
	},
	PriceGrowthMonthly: {
		ID:        "growth",
		Name:      "Growth",
		CSVExport: true,
		CROAudit:  true,
		AdHooks:   true,
	},
}

// tierOrder lists price IDs highest tier first for resolution.
var tierOrder = []string{PriceGrowthMonthly, PriceStarterMonthly}

// Resolve returns the single effective plan for a set of active
// subscriptions. Highest tier wins; unrecognized price IDs are ignored;
// an empty set resolves to Free.
func Resolve(subscriptions []models.Subscription) Plan {
	if len(subscriptions) == 0 {
		return Free
	}
	priceIDs := make(map[string]struct{}, len(subscriptions))
	for _, sub := range subscriptions {
		priceIDs[sub.StripePriceID] = struct{}{}
	}
	for _, priceID := range tierOrder {
		if _, ok := priceIDs[priceID]; ok {
			return byPriceID[priceID]
		}
	}
	return Free
}

// ByPriceID looks up a tier by price identifier for display purposes.
// Unrecognized IDs return the Unknown plan rather than an error.
func ByPriceID(priceID string) Plan {
	if plan, ok := byPriceID[priceID]; ok {
		return plan
	}
	return Unknown
}
