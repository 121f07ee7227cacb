package gateway

import "context"

// IntentInfo is the gateway's response snapshot for a newly created intent.
type IntentInfo struct {
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Outcome carries the gateway-reported result of a confirm or refund call.
type Outcome struct {
	Status         string `json:"status"`
	ExternalID     string `json:"external_id,omitempty"`
	ChargeID       string `json:"charge_id,omitempty"`
	RefundID       string `json:"refund_id,omitempty"`
	AmountRefunded int64  `json:"amount_refunded,omitempty"`
}

// Gateway is the single point where the service touches the payment network.
// Implementations must return an explicit error on any unexpected response
// shape, never a zero-value success.
type Gateway interface {
	// CreateIntent registers a payment intent with the gateway and returns
	// its gateway-assigned identifier. The idempotency key, when non-empty,
	// is forwarded so retried calls cannot create duplicate intents.
	CreateIntent(ctx context.Context, amountCents int64, currency, idempotencyKey string) (string, *IntentInfo, error)
	// Confirm captures a previously created intent.
	Confirm(ctx context.Context, externalID string) (*Outcome, error)
	// Refund reverses a captured intent. amountCents of 0 refunds in full.
	Refund(ctx context.Context, externalID string, amountCents int64) (*Outcome, error)
}
