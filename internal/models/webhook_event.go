package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent stores verified payment-processor webhook payloads with
// deduplication metadata.
type WebhookEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Provider        string `gorm:"type:text;not null;uniqueIndex:idx_webhook_provider_event,priority:1"` // Payment processor name.
	ProviderEventID string `gorm:"type:text;not null;uniqueIndex:idx_webhook_provider_event,priority:2"` // Event ID assigned by the provider.

	EventType string         `gorm:"type:text;not null;index"` // Provider event type.
	Payload   datatypes.JSON `gorm:"not null"`                 // Raw verified payload.

	ProcessedAt     *time.Time `gorm:"type:timestamp"` // When handling finished.
	ProcessingError string     `gorm:"type:text"`      // Failure detail, empty on success.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
