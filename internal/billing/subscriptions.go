package billing

import (
	"context"
	"errors"
	"time"

	"github.com/convert-iq/convertiq/internal/models"

	"gorm.io/gorm"
)

// ActiveSubscriptions returns the user's subscriptions that currently
// grant plan entitlements: active or trialing, with a billing period
// that has not ended.
func ActiveSubscriptions(ctx context.Context, conn *gorm.DB, userID uint64, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	errFind := conn.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []models.SubscriptionStatus{
			models.SubscriptionStatusActive,
			models.SubscriptionStatusTrialing,
		}).
		Where("current_period_end > ?", now.UTC()).
		Find(&subs).Error
	if errFind != nil {
		return nil, errFind
	}
	return subs, nil
}

// CurrentSubscription returns the user's most recent subscription that
// is still worth surfacing: active, trialing, or past due. A nil
// result means the user is on the free tier.
func CurrentSubscription(ctx context.Context, conn *gorm.DB, userID uint64) (*models.Subscription, error) {
	var sub models.Subscription
	errFind := conn.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []models.SubscriptionStatus{
			models.SubscriptionStatusActive,
			models.SubscriptionStatusTrialing,
			models.SubscriptionStatusPastDue,
		}).
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, errFind
	}
	return &sub, nil
}
