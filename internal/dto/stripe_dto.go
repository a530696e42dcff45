package dto

// StripeCheckoutSession is a minimal representation of a Stripe
// checkout.session event object. Only the fields the reconciler needs are
// decoded; everything else in the event is ignored.
type StripeCheckoutSession struct {
	ID            string            `json:"id"`
	Mode          string            `json:"mode"`
	Customer      string            `json:"customer"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

// StripeSubscription is a minimal representation of a Stripe subscription
// event object.
type StripeSubscription struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}
