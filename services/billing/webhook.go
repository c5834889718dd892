package billing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// DefaultTolerance is the maximum age of a signed webhook
const DefaultTolerance = 5 * time.Minute

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
// Events rendered with another API version are accepted; only the fields the
// service reads are decoded.
func ConstructEvent(payload []byte, header, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
}

// IsSignatureError reports whether err came from signature verification rather
// than from decoding the payload.
func IsSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// EventType reads the type of an unverified payload, for metrics labels only
func EventType(payload []byte) string {
	var envelope struct {
		Type stripe.EventType `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Type == "" {
		return "unknown"
	}
	return string(envelope.Type)
}
