package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe creates hosted Checkout Sessions.
type Stripe struct {
	api         *client.API
	currency    string
	productName string
	verifier    WebhookVerifier
}

func NewStripe(secretKey, currency, productName string, verifier WebhookVerifier) *Stripe {
	return &Stripe{
		api:         client.New(secretKey, nil),
		currency:    currency,
		productName: productName,
		verifier:    verifier,
	}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	if req.AmountCents <= 0 {
		return "", errors.New("payments: amount must be positive")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(s.productName),
				},
			},
		}},
	}
	params.Context = ctx
	for k, v := range req.Metadata() {
		params.AddMetadata(k, v)
	}

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("payments: create checkout session: %w", err)
	}
	if cs.URL == "" {
		return "", errors.New("payments: checkout session has no url")
	}
	return cs.URL, nil
}

func (s *Stripe) ParseWebhook(payload []byte, signature string) (Event, error) {
	return s.verifier.Parse(payload, signature)
}
