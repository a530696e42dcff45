package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studyhub/studyhub-backend/internal/config"
	"github.com/studyhub/studyhub-backend/internal/dto"
	"github.com/studyhub/studyhub-backend/internal/middleware"
	"github.com/studyhub/studyhub-backend/internal/realtime"
	"github.com/studyhub/studyhub-backend/internal/services"
	"gorm.io/gorm"
)

type generateFixture struct {
	app           *fiber.App
	db            *gorm.DB
	entitlements  *services.EntitlementService
	upstreamCalls *atomic.Int64
}

// newGenerateFixture wires the generate route against an in-memory store
// and a fake AI endpoint that counts how often it is reached.
func newGenerateFixture(t *testing.T) *generateFixture {
	t.Helper()

	calls := &atomic.Int64{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "generated answer"}},
				}},
			},
		})
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		JWTSecret:     testJWTSecret,
		GeminiAPIURL:  upstream.URL,
		GeminiAPIKey:  "test-key",
		GeminiModel:   "gemini-test",
		AITimeout:     5 * time.Second,
		FreeWordLimit: 10,
	}

	db := newTestDB(t)
	entitlements := services.NewEntitlementService(db, realtime.NewHub())
	generation := services.NewGenerationService(cfg)
	handler := NewGenerateHandler(entitlements, generation, cfg.FreeWordLimit)

	app := fiber.New()
	app.Post("/api/generate", middleware.JWTProtected(cfg), handler.Generate)

	return &generateFixture{
		app:           app,
		db:            db,
		entitlements:  entitlements,
		upstreamCalls: calls,
	}
}

func (f *generateFixture) post(t *testing.T, token string, body dto.GenerateRequest) (*http.Response, dto.ErrorResponse, dto.GenerateResponse) {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/generate", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var errBody dto.ErrorResponse
	var okBody dto.GenerateResponse
	raw := new(bytes.Buffer)
	_, err = raw.ReadFrom(resp.Body)
	require.NoError(t, err)
	if resp.StatusCode == fiber.StatusOK {
		require.NoError(t, json.Unmarshal(raw.Bytes(), &okBody))
	} else {
		require.NoError(t, json.Unmarshal(raw.Bytes(), &errBody))
	}
	return resp, errBody, okBody
}

func TestGenerateRequiresAuth(t *testing.T) {
	f := newGenerateFixture(t)

	resp, _, _ := f.post(t, "", dto.GenerateRequest{UserQuery: "hello"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, f.upstreamCalls.Load())
}

func TestGenerateFreeUserUnderLimit(t *testing.T) {
	f := newGenerateFixture(t)
	userID := uuid.New()
	token := signToken(t, userID, "u1@example.com")

	resp, _, body := f.post(t, token, dto.GenerateRequest{UserQuery: "short question"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "generated answer", body.Text)
	assert.Equal(t, int64(1), f.upstreamCalls.Load())
}

func TestGenerateFreeUserOverLimitGetsPaymentRequired(t *testing.T) {
	f := newGenerateFixture(t)
	userID := uuid.New()
	token := signToken(t, userID, "u1@example.com")

	longQuery := strings.Repeat("word ", 11)
	resp, errBody, _ := f.post(t, token, dto.GenerateRequest{UserQuery: longQuery, IsOverLimit: true})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	assert.Contains(t, errBody.Message, "upgrade")

	// The gate runs before the provider call: the metered upstream must
	// never see an unauthorized prompt.
	assert.Zero(t, f.upstreamCalls.Load())
}

func TestGenerateRecountsServerSide(t *testing.T) {
	f := newGenerateFixture(t)
	userID := uuid.New()
	token := signToken(t, userID, "u1@example.com")

	// The client lies about the limit; the server's own word count decides.
	longQuery := strings.Repeat("word ", 11)
	resp, _, _ := f.post(t, token, dto.GenerateRequest{UserQuery: longQuery, IsOverLimit: false})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	assert.Zero(t, f.upstreamCalls.Load())
}

func TestGenerateHonorsAdvisoryFlag(t *testing.T) {
	f := newGenerateFixture(t)
	userID := uuid.New()
	token := signToken(t, userID, "u1@example.com")

	// Under the limit by recount, but the client flags it over: the flag
	// can only tighten the gate, so it still gates.
	resp, _, _ := f.post(t, token, dto.GenerateRequest{UserQuery: "short", IsOverLimit: true})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
}

func TestGeneratePremiumUserOverLimit(t *testing.T) {
	f := newGenerateFixture(t)
	userID := uuid.New()
	token := signToken(t, userID, "u1@example.com")
	require.NoError(t, f.entitlements.MarkPremium(userID, "cus_123"))

	longQuery := strings.Repeat("word ", 11)
	resp, _, body := f.post(t, token, dto.GenerateRequest{UserQuery: longQuery, IsOverLimit: true})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "generated answer", body.Text)
	assert.Equal(t, int64(1), f.upstreamCalls.Load())
}

func TestGenerateRejectsEmptyQuery(t *testing.T) {
	f := newGenerateFixture(t)
	token := signToken(t, uuid.New(), "u1@example.com")

	resp, _, _ := f.post(t, token, dto.GenerateRequest{UserQuery: "   "})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, f.upstreamCalls.Load())
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"two words", 2},
		{"  padded   with\t whitespace \n", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countWords(tt.in), "input %q", tt.in)
	}
}
