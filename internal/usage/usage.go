// Package usage meters optimization consumption per user and billing period.
package usage

import (
	"context"
	"errors"
	"time"

	"github.com/convert-iq/convertiq/internal/db"
	"github.com/convert-iq/convertiq/internal/models"
	"github.com/convert-iq/convertiq/internal/plans"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuotaExceeded indicates the plan's per-period optimization limit is spent.
var ErrQuotaExceeded = errors.New("optimization limit reached")

// Ledger reads and increments per-period usage rows.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a Ledger backed by GORM.
func NewLedger(db *gorm.DB) *Ledger { return &Ledger{db: db} }

// GetOrCreate returns the usage row for the period, creating it with a
// zero count when absent. Idempotent.
func (l *Ledger) GetOrCreate(ctx context.Context, userID uint64, periodStart, periodEnd time.Time) (models.Usage, error) {
	var row models.Usage
	errFind := l.db.WithContext(ctx).
		Where("user_id = ? AND period_start = ? AND period_end = ?", userID, periodStart, periodEnd).
		Take(&row).Error
	if errFind == nil {
		return row, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.Usage{}, errFind
	}

	row = models.Usage{
		UserID:      userID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}
	if errCreate := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_start"}, {Name: "period_end"}},
		DoNothing: true,
	}).Create(&row).Error; errCreate != nil {
		return models.Usage{}, errCreate
	}

	// Re-read so a concurrent creator's row wins over our zero-value one.
	if errReread := l.db.WithContext(ctx).
		Where("user_id = ? AND period_start = ? AND period_end = ?", userID, periodStart, periodEnd).
		Take(&row).Error; errReread != nil {
		return models.Usage{}, errReread
	}
	return row, nil
}

// UsedForPeriod returns the consumed count for the period, zero when no
// row exists yet.
func (l *Ledger) UsedForPeriod(ctx context.Context, userID uint64, periodStart, periodEnd time.Time) (int, error) {
	var row models.Usage
	errFind := l.db.WithContext(ctx).
		Where("user_id = ? AND period_start = ? AND period_end = ?", userID, periodStart, periodEnd).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, errFind
	}
	return row.OptimizationsUsed, nil
}

// Increment consumes one optimization for the period after checking the
// plan's quota. The usage row is locked for the duration of the
// transaction so concurrent requests cannot slip past the limit check.
// Returns the count after the increment.
func (l *Ledger) Increment(ctx context.Context, userID uint64, plan plans.Plan, periodStart, periodEnd time.Time) (int, error) {
	if _, errEnsure := l.GetOrCreate(ctx, userID, periodStart, periodEnd); errEnsure != nil {
		return 0, errEnsure
	}

	used := 0
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.WithContext(ctx)
		if !db.IsSQLite(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var row models.Usage
		if errFind := q.
			Where("user_id = ? AND period_start = ? AND period_end = ?", userID, periodStart, periodEnd).
			Take(&row).Error; errFind != nil {
			return errFind
		}

		if !plan.Unlimited() && row.OptimizationsUsed >= *plan.Optimizations {
			return ErrQuotaExceeded
		}

		if errUpdate := tx.WithContext(ctx).
			Model(&models.Usage{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"optimizations_used": gorm.Expr("optimizations_used + ?", 1),
				"updated_at":         time.Now().UTC(),
			}).Error; errUpdate != nil {
			return errUpdate
		}
		used = row.OptimizationsUsed + 1
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	return used, nil
}
