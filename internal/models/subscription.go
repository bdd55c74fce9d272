package models

import "time"

// SubscriptionStatus represents the lifecycle state of a subscription.
type SubscriptionStatus string

// SubscriptionStatus constants mirror the payment processor's states.
const (
	// SubscriptionStatusActive marks a paid, current subscription.
	SubscriptionStatusActive SubscriptionStatus = "active"
	// SubscriptionStatusTrialing marks a subscription within its trial window.
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	// SubscriptionStatusCanceled marks a terminated subscription.
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	// SubscriptionStatusIncomplete marks a subscription awaiting initial payment.
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	// SubscriptionStatusPastDue marks a subscription with a failed renewal payment.
	SubscriptionStatusPastDue SubscriptionStatus = "past_due"
)

// Subscription records a user's billing state, kept in sync via webhooks.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Owning user record.

	StripeSubscriptionID string `gorm:"type:text;not null;uniqueIndex"` // External subscription ID.
	StripePriceID        string `gorm:"type:text;not null"`             // Price ID the tier resolves from.
	StripeCustomerID     string `gorm:"type:text;not null;index"`       // External customer reference.

	Status SubscriptionStatus `gorm:"type:text;not null"` // Current lifecycle state.

	CurrentPeriodStart *time.Time `gorm:"type:timestamp"`         // Billing period start.
	CurrentPeriodEnd   *time.Time `gorm:"type:timestamp"`         // Billing period end.
	CancelAtPeriodEnd  bool       `gorm:"not null;default:false"` // Scheduled cancellation flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
