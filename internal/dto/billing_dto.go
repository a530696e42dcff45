package dto

import "time"

type CheckoutSessionResponse struct {
	URL string `json:"url"`
}

type WebhookReceivedResponse struct {
	Received bool `json:"received"`
}

type EntitlementResponse struct {
	UserID    string    `json:"user_id"`
	IsPremium bool      `json:"is_premium"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
