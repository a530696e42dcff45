package handlers

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/studyhub/studyhub-backend/internal/dto"
	"github.com/studyhub/studyhub-backend/internal/metrics"
	"github.com/studyhub/studyhub-backend/internal/models"
	"github.com/studyhub/studyhub-backend/internal/services"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookHandler is the reconciler for asynchronous Stripe events. It is
// the only component allowed to mutate entitlement records.
type WebhookHandler struct {
	secret       string
	entitlements *services.EntitlementService
	db           *gorm.DB
}

func NewWebhookHandler(secret string, entitlements *services.EntitlementService, db *gorm.DB) *WebhookHandler {
	return &WebhookHandler{
		secret:       secret,
		entitlements: entitlements,
		db:           db,
	}
}

// HandleStripe verifies and processes one webhook delivery. Rejections use
// 4xx for data problems Stripe must not retry into success, and 5xx for
// store failures so Stripe's at-least-once delivery retries them.
func (h *WebhookHandler) HandleStripe(c *fiber.Ctx) error {
	start := time.Now()
	eventType := "unknown"
	status := fiber.StatusOK
	defer func() {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	// c.Body() is the exact byte sequence Stripe signed. It must reach the
	// signature check untransformed; re-serializing it first would break
	// verification.
	payload := c.Body()
	sigHeader := c.Get("Stripe-Signature")

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		slog.Error("webhook signature verification failed", "error", err)
		status = fiber.StatusBadRequest
		return c.Status(status).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid webhook signature",
		})
	}
	eventType = string(event.Type)

	h.recordEvent(&event)

	switch event.Type {
	case "checkout.session.completed":
		status = h.handleCheckoutCompleted(c, &event)
	case "customer.subscription.deleted":
		status = h.handleSubscriptionDeleted(c, &event)
	default:
		// Unhandled types are acknowledged so new processor event types
		// never turn into retry storms.
		slog.Info("webhook ignored", "type", eventType, "event_id", event.ID)
	}

	if status != fiber.StatusOK {
		return nil // response already written
	}
	return c.JSON(dto.WebhookReceivedResponse{Received: true})
}

func (h *WebhookHandler) handleCheckoutCompleted(c *fiber.Ctx, event *stripe.Event) int {
	var session dto.StripeCheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		slog.Error("webhook checkout session decode failed", "event_id", event.ID, "error", err)
		_ = c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Malformed checkout session payload",
		})
		return fiber.StatusBadRequest
	}

	// The metadata user id is the only link back to a subject. Its absence
	// is a data problem, not a transient failure: report a client error so
	// Stripe does not retry.
	rawUserID := session.Metadata["user_id"]
	if rawUserID == "" {
		slog.Error("webhook checkout session missing user_id metadata", "event_id", event.ID, "session_id", session.ID)
		_ = c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Missing user ID in session metadata",
		})
		return fiber.StatusBadRequest
	}

	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		slog.Error("webhook checkout session has invalid user_id metadata", "event_id", event.ID, "user_id", rawUserID)
		_ = c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user ID in session metadata",
		})
		return fiber.StatusBadRequest
	}

	if err := h.entitlements.MarkPremium(userID, session.Customer); err != nil {
		slog.Error("webhook entitlement upgrade failed", "event_id", event.ID, "user_id", userID, "error", err)
		_ = c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to update subscription status",
		})
		return fiber.StatusInternalServerError
	}

	slog.Info("user upgraded to premium", "user_id", userID, "event_id", event.ID)
	return fiber.StatusOK
}

func (h *WebhookHandler) handleSubscriptionDeleted(c *fiber.Ctx, event *stripe.Event) int {
	var sub dto.StripeSubscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		slog.Error("webhook subscription decode failed", "event_id", event.ID, "error", err)
		_ = c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Malformed subscription payload",
		})
		return fiber.StatusBadRequest
	}

	if err := h.entitlements.Downgrade(sub.Customer); err != nil {
		slog.Error("webhook entitlement downgrade failed", "event_id", event.ID, "customer", sub.Customer, "error", err)
		_ = c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to update subscription status",
		})
		return fiber.StatusInternalServerError
	}

	slog.Info("subscription ended, premium cleared", "customer", sub.Customer, "event_id", event.ID)
	return fiber.StatusOK
}

// recordEvent writes an audit row for a verified event. Best effort: audit
// failures are logged but never change the delivery outcome.
func (h *WebhookHandler) recordEvent(event *stripe.Event) {
	row := models.WebhookEvent{
		ID:            uuid.New(),
		StripeEventID: event.ID,
		Type:          string(event.Type),
		Payload:       datatypes.JSON(event.Data.Raw),
	}
	if err := h.db.Create(&row).Error; err != nil {
		slog.Error("failed to record webhook event", "event_id", event.ID, "error", err)
	}
}
