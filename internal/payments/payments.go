// Package payments creates hosted checkouts and decodes payment webhooks.
package payments

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/config"
)

// EventCheckoutCompleted is the only webhook event the service acts on.
const EventCheckoutCompleted = "checkout.session.completed"

// Metadata keys written on every checkout. The enrollment_* and typing_user
// spellings are accepted on the way back in for older checkouts.
const (
	MetaSessionID           = "session_id"
	MetaStudentID           = "student_id"
	MetaEnrollmentID        = "enrollment_id"
	MetaEnrollmentSessionID = "enrollment_session_id"
	MetaEnrollmentStudentID = "enrollment_student_id"
	MetaTypingUsername      = "typing_username"
	MetaTypingUser          = "typing_user"
)

type CheckoutRequest struct {
	SessionID      uint
	StudentID      uint
	EnrollmentID   uint
	AmountCents    int64
	SuccessURL     string
	CancelURL      string
	TypingUsername string
}

// Metadata is the key/value set attached to the provider checkout.
func (r CheckoutRequest) Metadata() map[string]string {
	sid := strconv.FormatUint(uint64(r.SessionID), 10)
	stid := strconv.FormatUint(uint64(r.StudentID), 10)
	md := map[string]string{
		MetaSessionID:           sid,
		MetaStudentID:           stid,
		MetaEnrollmentSessionID: sid,
		MetaEnrollmentStudentID: stid,
		MetaEnrollmentID:        strconv.FormatUint(uint64(r.EnrollmentID), 10),
	}
	if r.TypingUsername != "" {
		md[MetaTypingUsername] = r.TypingUsername
	}
	return md
}

// Event is a decoded, authenticated webhook notification.
type Event struct {
	ID       string
	Type     string
	Metadata map[string]string
}

// Gateway is the payment capability used by the booking workflow.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (checkoutURL string, err error)
	ParseWebhook(payload []byte, signature string) (Event, error)
	Name() string
}

// New returns a Stripe gateway when a secret key is configured and the
// placeholder otherwise. Webhook verification follows the same rules either way.
func New(cfg config.Config, log *zap.Logger) Gateway {
	verifier := WebhookVerifier{
		Secret:        cfg.StripeWebhookSecret,
		AllowUnsigned: cfg.AllowUnsignedWebhooks(),
	}
	if cfg.AllowUnsignedWebhooks() {
		log.Warn("stripe webhook signature verification disabled (dev opt-in)")
	}
	if !cfg.StripeConfigured() {
		return Placeholder{Verifier: verifier}
	}
	return NewStripe(cfg.StripeSecretKey, cfg.StripeCurrency, cfg.StripeProductName, verifier)
}

// PlaceholderURL encodes the checkout identifiers into a deterministic URL.
func PlaceholderURL(req CheckoutRequest) string {
	q := url.Values{}
	q.Set("session_id", strconv.FormatUint(uint64(req.SessionID), 10))
	q.Set("student_id", strconv.FormatUint(uint64(req.StudentID), 10))
	q.Set("enrollment_id", strconv.FormatUint(uint64(req.EnrollmentID), 10))
	if req.TypingUsername != "" {
		q.Set("typing_username", req.TypingUsername)
	}
	return "https://example.com/checkout/dev-placeholder?" + q.Encode()
}

// Placeholder issues PlaceholderURL checkouts and never calls out.
type Placeholder struct {
	Verifier WebhookVerifier
}

func (Placeholder) CreateCheckout(_ context.Context, req CheckoutRequest) (string, error) {
	return PlaceholderURL(req), nil
}

func (p Placeholder) ParseWebhook(payload []byte, signature string) (Event, error) {
	return p.Verifier.Parse(payload, signature)
}

func (Placeholder) Name() string { return "placeholder" }
