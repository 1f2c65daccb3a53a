package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const maxWebhookBody = 64 << 10

// Resolver is implemented by Trigger.
type Resolver interface {
	ResolveCharge(ctx context.Context, ref string, outcome Outcome, reason string) error
}

// WebhookHandler receives Stripe events. Only events that resolve a charge
// are acted on; everything else is acknowledged and dropped.
type WebhookHandler struct {
	resolver Resolver
	secret   string
	log      *slog.Logger
}

func NewWebhookHandler(resolver Resolver, secret string, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{resolver: resolver, secret: secret, log: log}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.log.Warn("webhook signature rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}

	ref, outcome, reason, ok := chargeResolution(event)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	err = h.resolver.ResolveCharge(r.Context(), ref, outcome, reason)
	if errors.Is(err, ErrUnknownReference) {
		// The relapse that created the charge may not have committed yet.
		h.log.Warn("charge not found yet, asking for redelivery", "event_id", event.ID, "gateway_ref", ref)
		writeJSON(w, http.StatusConflict, map[string]string{"error": "unknown charge reference"})
		return
	}
	if err != nil {
		// A non-2xx makes the gateway redeliver.
		h.log.Error("resolve charge failed", "event_id", event.ID, "gateway_ref", ref, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// chargeResolution extracts the payment intent reference and outcome from an
// event, reporting false for events that do not resolve a charge.
func chargeResolution(event stripe.Event) (ref string, outcome Outcome, reason string, ok bool) {
	if event.Data == nil {
		return "", "", "", false
	}
	switch string(event.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil || pi.ID == "" {
			return "", "", "", false
		}
		if string(event.Type) == "payment_intent.succeeded" {
			return pi.ID, OutcomeSucceeded, "", true
		}
		if pi.LastPaymentError != nil {
			reason = pi.LastPaymentError.Msg
		}
		return pi.ID, OutcomeFailed, reason, true
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil || ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return "", "", "", false
		}
		return ch.PaymentIntent.ID, OutcomeRefunded, "", true
	}
	return "", "", "", false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
