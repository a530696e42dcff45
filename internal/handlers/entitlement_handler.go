package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/studyhub/studyhub-backend/internal/dto"
	"github.com/studyhub/studyhub-backend/internal/metrics"
	"github.com/studyhub/studyhub-backend/internal/middleware"
	"github.com/studyhub/studyhub-backend/internal/realtime"
	"github.com/studyhub/studyhub-backend/internal/services"
)

const livePingInterval = 30 * time.Second

type EntitlementHandler struct {
	entitlements *services.EntitlementService
	hub          *realtime.Hub
}

func NewEntitlementHandler(entitlements *services.EntitlementService, hub *realtime.Hub) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements, hub: hub}
}

// Get returns the caller's current entitlement record.
func (h *EntitlementHandler) Get(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	record, err := h.entitlements.GetOrCreate(userID)
	if err != nil {
		slog.Error("entitlement read failed", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Could not read subscription status.",
		})
	}

	return c.JSON(dto.EntitlementResponse{
		UserID:    record.UserID.String(),
		IsPremium: record.IsPremium,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	})
}

type liveMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Live streams the caller's entitlement record over a websocket: the
// current state immediately, then a snapshot on every change. This is the
// authoritative signal the client UI gates on; payment-redirect markers
// are display hints only.
func (h *EntitlementHandler) Live(conn *websocket.Conn) {
	defer conn.Close()

	userID, err := wsUserID(conn)
	if err != nil {
		_ = conn.WriteJSON(liveMessage{Type: "error", Data: "unauthorized"})
		return
	}

	metrics.LiveSubscribers.Inc()
	defer metrics.LiveSubscribers.Dec()

	record, err := h.entitlements.GetOrCreate(userID)
	if err != nil {
		slog.Error("live feed initial read failed", "user_id", userID, "error", err)
		_ = conn.WriteJSON(liveMessage{Type: "error", Data: "store unavailable"})
		return
	}
	if err := conn.WriteJSON(liveMessage{Type: "entitlement", Data: services.Snapshot(record)}); err != nil {
		return
	}

	updates, cancel := h.hub.Subscribe(userID)
	defer cancel()

	// Reader goroutine only detects disconnect; clients never send data.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(livePingInterval)
	defer pingTicker.Stop()

	slog.Info("live entitlement feed connected", "user_id", userID)
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(liveMessage{Type: "entitlement", Data: snap}); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			slog.Info("live entitlement feed disconnected", "user_id", userID)
			return
		}
	}
}

func wsUserID(conn *websocket.Conn) (uuid.UUID, error) {
	token, ok := conn.Locals("user").(*jwt.Token)
	if !ok {
		return uuid.Nil, jwt.ErrTokenMalformed
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}
	return uuid.Parse(sub)
}
