package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/studyhub/studyhub-backend/internal/config"
)

// ErrSessionCreation means the payment processor rejected or failed the
// checkout session call.
var ErrSessionCreation = errors.New("failed to create checkout session")

// CheckoutService builds hosted Stripe Checkout sessions for the single
// subscription product. The user's id rides in session metadata; it is the
// only linkage the webhook reconciler has back to a subject, so it is set
// unconditionally.
type CheckoutService struct {
	priceID     string
	frontendURL string

	createSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewCheckoutService(cfg *config.Config) *CheckoutService {
	// stripe-go binds credentials at package level; set once at startup.
	stripe.Key = cfg.StripeSecretKey
	return &CheckoutService{
		priceID:       cfg.StripePriceID,
		frontendURL:   cfg.FrontendURL,
		createSession: stripesession.New,
	}
}

// CreateSession returns the hosted checkout URL for the given user.
func (s *CheckoutService) CreateSession(userID uuid.UUID, email string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		CustomerEmail:      stripe.String(email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"user_id": userID.String(),
		},
		SuccessURL: stripe.String(s.frontendURL + "/index.html?payment=success"),
		CancelURL:  stripe.String(s.frontendURL + "/index.html?payment=cancel"),
	}

	session, err := s.createSession(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionCreation, err)
	}
	if session == nil || session.URL == "" {
		return "", fmt.Errorf("%w: no session URL returned", ErrSessionCreation)
	}

	return session.URL, nil
}
