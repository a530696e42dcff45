package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WebhookEvent is an audit row for received Stripe events, written best
// effort after signature verification. The reconciler never consults these
// rows to decide processing: duplicate deliveries are reprocessed and
// idempotence comes from the unconditional entitlement update.
type WebhookEvent struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StripeEventID string         `gorm:"size:255;index" json:"stripe_event_id"`
	Type          string         `gorm:"size:100;not null;index" json:"type"`
	Payload       datatypes.JSON `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
}
