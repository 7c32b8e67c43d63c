package payments

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	// ErrWebhookNotConfigured means no secret is set and unsigned payloads were not opted into.
	ErrWebhookNotConfigured = errors.New("payments: webhook secret not configured")
	ErrInvalidSignature     = errors.New("payments: invalid webhook signature")
	ErrInvalidPayload       = errors.New("payments: invalid webhook payload")
)

// WebhookVerifier authenticates and decodes Stripe webhook payloads.
type WebhookVerifier struct {
	Secret        string
	AllowUnsigned bool
}

func (v WebhookVerifier) Parse(payload []byte, signature string) (Event, error) {
	var evt stripe.Event
	switch {
	case v.Secret != "":
		var err error
		evt, err = webhook.ConstructEventWithOptions(payload, signature, v.Secret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	case v.AllowUnsigned:
		if err := json.Unmarshal(payload, &evt); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	default:
		return Event{}, ErrWebhookNotConfigured
	}

	out := Event{ID: evt.ID, Type: string(evt.Type), Metadata: map[string]string{}}
	if out.Type != EventCheckoutCompleted {
		return out, nil
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return Event{}, fmt.Errorf("%w: missing data.object", ErrInvalidPayload)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for k, val := range cs.Metadata {
		out.Metadata[k] = val
	}
	return out, nil
}
