package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studyhub/studyhub-backend/internal/models"
	"github.com/studyhub/studyhub-backend/internal/realtime"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrPaymentRequired means the request exceeds the free tier and the
	// user has no premium entitlement.
	ErrPaymentRequired = errors.New("word limit exceeded, premium required")
)

// EntitlementService owns the per-user entitlement record. The gate only
// reads; every write goes through MarkPremium/Downgrade, which are driven
// exclusively by the webhook reconciler.
type EntitlementService struct {
	db  *gorm.DB
	hub *realtime.Hub
}

func NewEntitlementService(db *gorm.DB, hub *realtime.Hub) *EntitlementService {
	return &EntitlementService{db: db, hub: hub}
}

// GetOrCreate reads the user's entitlement record, creating the default
// free-tier row if it is missing. Rows are normally created at sign-up;
// the fallback keeps accounts from before that invariant usable.
func (s *EntitlementService) GetOrCreate(userID uuid.UUID) (*models.Entitlement, error) {
	var record models.Entitlement
	err := s.db.First(&record, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = models.Entitlement{
			UserID:    userID,
			IsPremium: false,
		}
		if err := s.db.Create(&record).Error; err != nil {
			return nil, fmt.Errorf("failed to create entitlement record: %w", err)
		}
		return &record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entitlement record: %w", err)
	}
	return &record, nil
}

// Authorize is the premium gate for billable calls. It always performs the
// store read so the decision reflects the current record, and must run
// before any call to the AI provider.
func (s *EntitlementService) Authorize(userID uuid.UUID, overLimit bool) error {
	record, err := s.GetOrCreate(userID)
	if err != nil {
		return err
	}
	if overLimit && !record.IsPremium {
		return ErrPaymentRequired
	}
	return nil
}

// MarkPremium is the reconciler's state transition: set the record to its
// terminal paid state. The write is an unconditional set (upsert), so
// at-least-once webhook delivery converges to the same end state.
func (s *EntitlementService) MarkPremium(userID uuid.UUID, stripeCustomerID string) error {
	record := models.Entitlement{
		UserID:           userID,
		IsPremium:        true,
		StripeCustomerID: &stripeCustomerID,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_premium", "stripe_customer_id", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to upgrade entitlement record: %w", err)
	}

	s.hub.Publish(realtime.Snapshot{
		UserID:    userID,
		IsPremium: true,
		UpdatedAt: time.Now().UTC(),
	})
	return nil
}

// Downgrade clears the premium flag for the record linked to a Stripe
// customer, used when the processor reports the subscription ended.
func (s *EntitlementService) Downgrade(stripeCustomerID string) error {
	var record models.Entitlement
	err := s.db.First(&record, "stripe_customer_id = ?", stripeCustomerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Nothing linked to this customer; an already-deleted account.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up entitlement by customer: %w", err)
	}

	if err := s.db.Model(&record).Update("is_premium", false).Error; err != nil {
		return fmt.Errorf("failed to downgrade entitlement record: %w", err)
	}

	s.hub.Publish(realtime.Snapshot{
		UserID:    record.UserID,
		IsPremium: false,
		UpdatedAt: time.Now().UTC(),
	})
	return nil
}

// Snapshot converts a record into its live-feed representation.
func Snapshot(record *models.Entitlement) realtime.Snapshot {
	return realtime.Snapshot{
		UserID:    record.UserID,
		IsPremium: record.IsPremium,
		UpdatedAt: record.UpdatedAt,
	}
}
