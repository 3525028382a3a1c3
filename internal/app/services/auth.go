package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/crediflow/bankbridge/internal/app/ports"
)

var (
	// ErrUnknownServiceAccount indicates no service account owns the event's
	// subscription id.
	ErrUnknownServiceAccount = errors.New("unknown service account")
	// ErrInvalidSignature indicates payload signature validation failure.
	ErrInvalidSignature = errors.New("invalid signature")
)

// AuthErrorKind classifies authentication failures for transport-specific
// mapping.
type AuthErrorKind string

const (
	AuthErrorUnknown        AuthErrorKind = "unknown"
	AuthErrorUnknownAccount AuthErrorKind = "unknown_account"
	AuthErrorBadSignature   AuthErrorKind = "bad_signature"
)

// ClassifyAuthError classifies a returned authentication error.
func ClassifyAuthError(err error) AuthErrorKind {
	switch {
	case errors.Is(err, ErrUnknownServiceAccount):
		return AuthErrorUnknownAccount
	case errors.Is(err, ErrInvalidSignature):
		return AuthErrorBadSignature
	default:
		return AuthErrorUnknown
	}
}

// Authenticator resolves the subscriber identity of inbound events and
// validates their signatures. It has no side effects beyond the registry
// lookup.
type Authenticator struct {
	registry ports.ServiceAccountRegistry
}

// NewAuthenticator constructs an authenticator over the given registry.
func NewAuthenticator(registry ports.ServiceAccountRegistry) *Authenticator {
	return &Authenticator{registry: registry}
}

// Authenticate resolves the service account owning the event's subscription
// and validates signature over the raw body. ok=false with a nil error means
// the resolved account carries no matching subscription: the event is not for
// us and must be ignored without acknowledgment.
func (a *Authenticator) Authenticate(ctx context.Context, event InboundEvent, signature string, body []byte) (ports.ServiceAccount, ports.Subscription, bool, error) {
	account, err := a.registry.GetServiceAccountBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, ports.ErrServiceAccountNotFound) {
			return ports.ServiceAccount{}, ports.Subscription{}, false, ErrUnknownServiceAccount
		}
		return ports.ServiceAccount{}, ports.Subscription{}, false, err
	}

	subscription, found := account.SubscriptionByID(event.SubscriptionID)
	if !found {
		return ports.ServiceAccount{}, ports.Subscription{}, false, nil
	}

	if !validSignature(body, subscription.SigningSecret, signature) {
		return ports.ServiceAccount{}, ports.Subscription{}, false, ErrInvalidSignature
	}

	return account, subscription, true, nil
}

func validSignature(body []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
