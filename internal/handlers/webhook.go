package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/serenityskeys/backend/internal/payments"
	"github.com/serenityskeys/backend/internal/services"
	"github.com/serenityskeys/backend/internal/telemetry"
)

const maxWebhookBytes = 64 << 10

// POST /webhooks/stripe
func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.fail(w, r, services.Validation("INVALID_PAYLOAD", "Invalid payload"))
		return
	}

	evt, err := h.payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payments.ErrWebhookNotConfigured):
		h.fail(w, r, services.MissingConfig("WEBHOOK_NOT_CONFIGURED", "Stripe webhook verification disabled"))
		return
	case errors.Is(err, payments.ErrInvalidSignature):
		telemetry.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		h.fail(w, r, services.Validation("INVALID_SIGNATURE", "Invalid signature"))
		return
	case err != nil:
		telemetry.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		h.fail(w, r, services.Validation("INVALID_PAYLOAD", "Invalid payload"))
		return
	}

	if err := h.svc.HandlePaymentEvent(r.Context(), evt); err != nil {
		h.log.Error("payment_event_failed", zap.String("event_id", evt.ID), zap.Error(err))
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
