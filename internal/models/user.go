package models

import "time"

// User represents an end-user account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique login email.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	StripeCustomerID *string `gorm:"type:text;uniqueIndex"` // External billing customer reference.

	Active bool `gorm:"not null;default:true"`  // Whether the user can sign in.
	IsPro  bool `gorm:"not null;default:false"` // Derived from subscriptions, never authoritative.

	Subscriptions []Subscription `gorm:"foreignKey:UserID"` // Related subscriptions.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
