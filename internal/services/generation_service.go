package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/studyhub/studyhub-backend/internal/config"
)

var (
	// ErrContentBlocked means the provider refused the prompt and reported
	// a block reason.
	ErrContentBlocked = errors.New("request blocked by the AI provider")
	// ErrEmptyResponse means the provider answered without usable content.
	ErrEmptyResponse = errors.New("empty response from the AI provider")
	// ErrUpstreamUnavailable covers transport, auth and quota failures on
	// the provider call itself.
	ErrUpstreamUnavailable = errors.New("AI provider unavailable")
)

// GenerationService proxies prompts to the Gemini generateContent endpoint.
// One attempt per call, no internal retry; the caller may re-issue.
type GenerationService struct {
	apiURL string
	apiKey string
	model  string
	client *http.Client
}

func NewGenerationService(cfg *config.Config) *GenerationService {
	return &GenerationService{
		apiURL: cfg.GeminiAPIURL,
		apiKey: cfg.GeminiAPIKey,
		model:  cfg.GeminiModel,
		client: &http.Client{Timeout: cfg.AITimeout},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate forwards one prompt and returns the provider's text. The three
// failure modes stay distinguishable through the sentinel errors even
// though the HTTP boundary collapses them into a generic 500.
func (s *GenerationService) Generate(ctx context.Context, userQuery, systemInstruction string) (string, error) {
	genReq := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: userQuery}}},
		},
	}
	if systemInstruction != "" {
		genReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemInstruction}}}
	}

	reqBody, err := json.Marshal(genReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", s.apiURL, s.model, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var genResp geminiResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", ErrUpstreamUnavailable, err)
	}

	if len(genResp.Candidates) > 0 && len(genResp.Candidates[0].Content.Parts) > 0 {
		if text := genResp.Candidates[0].Content.Parts[0].Text; text != "" {
			return text, nil
		}
	}

	if reason := genResp.PromptFeedback.BlockReason; reason != "" {
		return "", fmt.Errorf("%w: %s", ErrContentBlocked, reason)
	}

	return "", ErrEmptyResponse
}
