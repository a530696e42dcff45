package handlers

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studyhub/studyhub-backend/internal/models"
	"github.com/studyhub/studyhub-backend/internal/realtime"
	"github.com/studyhub/studyhub-backend/internal/services"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test_secret"

func newWebhookApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	entitlements := services.NewEntitlementService(db, realtime.NewHub())
	handler := NewWebhookHandler(webhookSecret, entitlements, db)

	app := fiber.New()
	app.Post("/api/stripe-webhook", handler.HandleStripe)
	return app, db
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/stripe-webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func checkoutCompleted(t *testing.T, userID, customer string) []byte {
	meta := map[string]interface{}{}
	if userID != "" {
		meta["user_id"] = userID
	}
	return stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"id":       "cs_test_1",
		"object":   "checkout.session",
		"mode":     "subscription",
		"customer": customer,
		"metadata": meta,
	})
}

func TestWebhookUpgradesUser(t *testing.T) {
	app, db := newWebhookApp(t)
	userID := uuid.New()

	signed := signPayload(checkoutCompleted(t, userID.String(), "cus_123"), webhookSecret)
	status := postWebhook(t, app, signed.Payload, signed.Header)
	assert.Equal(t, fiber.StatusOK, status)

	var record models.Entitlement
	require.NoError(t, db.First(&record, "user_id = ?", userID).Error)
	assert.True(t, record.IsPremium)
	require.NotNil(t, record.StripeCustomerID)
	assert.Equal(t, "cus_123", *record.StripeCustomerID)

	// Verified deliveries leave an audit row.
	var audits int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app, db := newWebhookApp(t)
	userID := uuid.New()
	payload := checkoutCompleted(t, userID.String(), "cus_123")

	t.Run("missing header", func(t *testing.T) {
		status := postWebhook(t, app, payload, "")
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	t.Run("wrong secret", func(t *testing.T) {
		signed := signPayload(payload, "whsec_other_secret")
		status := postWebhook(t, app, signed.Payload, signed.Header)
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	t.Run("tampered body", func(t *testing.T) {
		signed := signPayload(payload, webhookSecret)
		tampered := bytes.Replace(signed.Payload, []byte("cus_123"), []byte("cus_evil"), 1)
		status := postWebhook(t, app, tampered, signed.Header)
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	// Nothing got through the signature check, so no state changed.
	var entitlements, audits int64
	require.NoError(t, db.Model(&models.Entitlement{}).Count(&entitlements).Error)
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&audits).Error)
	assert.Zero(t, entitlements)
	assert.Zero(t, audits)
}

func TestWebhookMissingUserMetadata(t *testing.T) {
	app, db := newWebhookApp(t)

	signed := signPayload(checkoutCompleted(t, "", "cus_123"), webhookSecret)
	status := postWebhook(t, app, signed.Payload, signed.Header)
	// A client error, not a 5xx: Stripe retrying cannot conjure the missing
	// metadata.
	assert.Equal(t, fiber.StatusBadRequest, status)

	var entitlements int64
	require.NoError(t, db.Model(&models.Entitlement{}).Count(&entitlements).Error)
	assert.Zero(t, entitlements)
}

func TestWebhookInvalidUserMetadata(t *testing.T) {
	app, _ := newWebhookApp(t)

	signed := signPayload(checkoutCompleted(t, "not-a-uuid", "cus_123"), webhookSecret)
	status := postWebhook(t, app, signed.Payload, signed.Header)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestWebhookDuplicateDeliveryConverges(t *testing.T) {
	app, db := newWebhookApp(t)
	userID := uuid.New()
	signed := signPayload(checkoutCompleted(t, userID.String(), "cus_123"), webhookSecret)

	for i := 0; i < 2; i++ {
		status := postWebhook(t, app, signed.Payload, signed.Header)
		assert.Equal(t, fiber.StatusOK, status)
	}

	var record models.Entitlement
	require.NoError(t, db.First(&record, "user_id = ?", userID).Error)
	assert.True(t, record.IsPremium)

	var entitlements int64
	require.NoError(t, db.Model(&models.Entitlement{}).Count(&entitlements).Error)
	assert.Equal(t, int64(1), entitlements)
}

func TestWebhookSubscriptionDeletedDowngrades(t *testing.T) {
	app, db := newWebhookApp(t)
	userID := uuid.New()

	signed := signPayload(checkoutCompleted(t, userID.String(), "cus_123"), webhookSecret)
	require.Equal(t, fiber.StatusOK, postWebhook(t, app, signed.Payload, signed.Header))

	deleted := stripeEvent(t, "customer.subscription.deleted", map[string]interface{}{
		"id":       "sub_test_1",
		"object":   "subscription",
		"customer": "cus_123",
		"status":   "canceled",
	})
	signed = signPayload(deleted, webhookSecret)
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, signed.Payload, signed.Header))

	var record models.Entitlement
	require.NoError(t, db.First(&record, "user_id = ?", userID).Error)
	assert.False(t, record.IsPremium)
}

func TestWebhookIgnoresUnhandledEventTypes(t *testing.T) {
	app, db := newWebhookApp(t)

	event := stripeEvent(t, "invoice.payment_succeeded", map[string]interface{}{
		"id":     "in_test_1",
		"object": "invoice",
	})
	signed := signPayload(event, webhookSecret)
	// Acknowledged so Stripe does not retry, but no entitlement changes.
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, signed.Payload, signed.Header))

	var entitlements int64
	require.NoError(t, db.Model(&models.Entitlement{}).Count(&entitlements).Error)
	assert.Zero(t, entitlements)
}
