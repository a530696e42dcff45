package models

import (
	"time"

	"github.com/google/uuid"
)

// Entitlement is the persisted truth of whether a user has paid access.
// One row per user, created at sign-up with IsPremium false. Only the
// webhook reconciler flips IsPremium.
type Entitlement struct {
	UserID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	IsPremium        bool      `gorm:"not null;default:false" json:"is_premium"`
	StripeCustomerID *string   `gorm:"size:255;index" json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
