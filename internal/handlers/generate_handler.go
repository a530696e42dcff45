package handlers

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/studyhub/studyhub-backend/internal/dto"
	"github.com/studyhub/studyhub-backend/internal/metrics"
	"github.com/studyhub/studyhub-backend/internal/middleware"
	"github.com/studyhub/studyhub-backend/internal/services"
)

type GenerateHandler struct {
	entitlements *services.EntitlementService
	generation   *services.GenerationService

	freeWordLimit int
}

func NewGenerateHandler(entitlements *services.EntitlementService, generation *services.GenerationService, freeWordLimit int) *GenerateHandler {
	return &GenerateHandler{
		entitlements:  entitlements,
		generation:    generation,
		freeWordLimit: freeWordLimit,
	}
}

// Generate gates the request on the user's entitlement and forwards it to
// the AI provider. The gate runs before the provider call: the upstream is
// metered, so an over-limit free user must never reach it.
func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var req dto.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		metrics.GenerateRequestsTotal.WithLabelValues("bad_request").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if strings.TrimSpace(req.UserQuery) == "" {
		metrics.GenerateRequestsTotal.WithLabelValues("bad_request").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "userQuery is required",
		})
	}

	// The client's flag is advisory only; recount the query here so a
	// tampered request cannot slip an over-limit prompt past the gate.
	overLimit := req.IsOverLimit || countWords(req.UserQuery) > h.freeWordLimit

	if err := h.entitlements.Authorize(userID, overLimit); err != nil {
		if errors.Is(err, services.ErrPaymentRequired) {
			metrics.GenerateRequestsTotal.WithLabelValues("payment_required").Inc()
			return c.Status(fiber.StatusPaymentRequired).JSON(dto.ErrorResponse{
				Error: true, Message: "Payment Required: Word limit exceeded. Please upgrade.",
			})
		}
		slog.Error("entitlement read failed", "user_id", userID, "error", err)
		metrics.GenerateRequestsTotal.WithLabelValues("store_error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Could not verify user status.",
		})
	}

	text, err := h.generation.Generate(c.Context(), req.UserQuery, req.SystemInstruction)
	if err != nil {
		// The taxonomy stays visible in logs and metrics; the client only
		// sees a generic failure.
		switch {
		case errors.Is(err, services.ErrContentBlocked):
			slog.Error("generation blocked by provider", "user_id", userID, "error", err)
			metrics.GenerateRequestsTotal.WithLabelValues("blocked").Inc()
		case errors.Is(err, services.ErrEmptyResponse):
			slog.Error("generation returned no content", "user_id", userID, "error", err)
			metrics.GenerateRequestsTotal.WithLabelValues("empty").Inc()
		default:
			slog.Error("generation upstream call failed", "user_id", userID, "error", err)
			metrics.GenerateRequestsTotal.WithLabelValues("upstream_error").Inc()
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to generate content.",
		})
	}

	metrics.GenerateRequestsTotal.WithLabelValues("ok").Inc()
	return c.JSON(dto.GenerateResponse{Text: text})
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
