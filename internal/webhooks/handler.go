// Package webhooks handles inbound event deliveries from the lending
// platform's event bus.
package webhooks

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/crediflow/bankbridge/internal/app/services"
)

const (
	// SignatureHeader is the HMAC signature header.
	SignatureHeader = "X-Webhook-Signature"

	maxPayloadBytes = 1 << 20
)

// Handler authenticates event deliveries and hands them to the dispatcher.
// The transport response never waits on workflow completion: accepted events
// are answered 202 immediately.
type Handler struct {
	auth       *services.Authenticator
	dispatcher *services.Dispatcher
}

// NewHandler constructs an event webhook handler.
func NewHandler(auth *services.Authenticator, dispatcher *services.Dispatcher) *Handler {
	return &Handler{auth: auth, dispatcher: dispatcher}
}

type eventEnvelope struct {
	ID           string `json:"id"`
	Subscription struct {
		ID        string `json:"id"`
		EventName string `json:"eventName"`
	} `json:"subscription"`
	Payload json.RawMessage `json:"payload"`
}

// Handle validates and dispatches one event delivery. The response is fully
// written here, including error statuses.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.ID == "" || envelope.Subscription.ID == "" {
		http.Error(w, "invalid event envelope", http.StatusBadRequest)
		return
	}

	event := services.InboundEvent{
		ID:             envelope.ID,
		SubscriptionID: envelope.Subscription.ID,
		Name:           envelope.Subscription.EventName,
		Payload:        envelope.Payload,
	}

	account, subscription, ok, err := h.auth.Authenticate(r.Context(), event, r.Header.Get(SignatureHeader), body)
	if err != nil {
		switch services.ClassifyAuthError(err) {
		case services.AuthErrorUnknownAccount, services.AuthErrorBadSignature:
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		default:
			slog.Error("service account lookup failed", "subscription_id", event.SubscriptionID, "error", err)
			http.Error(w, "registry lookup failed", http.StatusInternalServerError)
		}
		return
	}
	if !ok {
		// Registered account without a matching subscription: not for us.
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ignored"))
		return
	}

	h.dispatcher.Dispatch(event, subscription, account)
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("accepted"))
}
