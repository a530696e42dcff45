package dto

// GenerateRequest mirrors the browser client's payload. IsOverLimit is a
// client-declared hint; the server recounts the query before gating.
type GenerateRequest struct {
	UserQuery         string `json:"userQuery"`
	SystemInstruction string `json:"systemInstruction"`
	IsOverLimit       bool   `json:"isOverLimit"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}
