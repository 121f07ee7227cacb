package gateway

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/refund"
)

// Stripe delegates to the Stripe payment network via stripe-go.
type Stripe struct {
	secretKey string
}

func NewStripe(secretKey string) *Stripe {
	stripe.Key = secretKey
	return &Stripe{secretKey: secretKey}
}

func (s *Stripe) CreateIntent(ctx context.Context, amountCents int64, currency, idempotencyKey string) (string, *IntentInfo, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", nil, err
	}
	return pi.ID, &IntentInfo{Status: string(pi.Status), ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) Confirm(ctx context.Context, externalID string) (*Outcome, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := paymentintent.Get(externalID, getParams)
	if err != nil {
		return nil, err
	}
	if pi.Status == stripe.PaymentIntentStatusRequiresConfirmation || pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod {
		confirmParams := &stripe.PaymentIntentConfirmParams{}
		confirmParams.Context = ctx
		pi, err = paymentintent.Confirm(externalID, confirmParams)
		if err != nil {
			return nil, err
		}
	}
	out := &Outcome{Status: string(pi.Status), ExternalID: pi.ID}
	if pi.LatestCharge != nil {
		out.ChargeID = pi.LatestCharge.ID
	}
	return out, nil
}

func (s *Stripe) Refund(ctx context.Context, externalID string, amountCents int64) (*Outcome, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(externalID),
	}
	params.Context = ctx
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	r, err := refund.New(params)
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Status:         string(r.Status),
		ExternalID:     externalID,
		RefundID:       r.ID,
		AmountRefunded: r.Amount,
	}, nil
}
