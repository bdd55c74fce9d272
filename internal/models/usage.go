package models

import "time"

// Usage counts consumed optimizations for one user within one billing period.
type Usage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_usage_user_period,priority:1"` // Owning user ID.

	OptimizationsUsed int `gorm:"not null;default:0"` // Consumed count, never decremented within a period.

	PeriodStart time.Time `gorm:"not null;uniqueIndex:idx_usage_user_period,priority:2"` // Billing period start.
	PeriodEnd   time.Time `gorm:"not null;uniqueIndex:idx_usage_user_period,priority:3"` // Billing period end.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
