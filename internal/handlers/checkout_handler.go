package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/studyhub/studyhub-backend/internal/dto"
	"github.com/studyhub/studyhub-backend/internal/metrics"
	"github.com/studyhub/studyhub-backend/internal/middleware"
	"github.com/studyhub/studyhub-backend/internal/services"
)

type CheckoutHandler struct {
	checkout *services.CheckoutService
}

func NewCheckoutHandler(checkout *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

// CreateSession returns a hosted checkout URL for the subscription product.
// It never touches the entitlement record; only the webhook flips it.
func (h *CheckoutHandler) CreateSession(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}
	email := middleware.UserEmail(c)

	url, err := h.checkout.CreateSession(userID, email)
	if err != nil {
		slog.Error("checkout session creation failed", "user_id", userID, "error", err)
		metrics.CheckoutSessionsTotal.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to create payment session.",
		})
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("ok").Inc()
	return c.JSON(dto.CheckoutSessionResponse{URL: url})
}
