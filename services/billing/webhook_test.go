package billing

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test"

func signedHeader(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

func TestConstructEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","api_version":"2020-08-27","data":{"object":{"id":"cs_1"}}}`)
	now := time.Now()

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{
			name:   "valid signature",
			header: signedHeader(payload, testWebhookSecret, now),
		},
		{
			name: "valid among several v1 entries",
			header: fmt.Sprintf("t=%d,v1=deadbeef,v1=%x", now.Unix(),
				webhook.ComputeSignature(time.Unix(now.Unix(), 0), payload, testWebhookSecret)),
		},
		{
			name:   "within tolerance",
			header: signedHeader(payload, testWebhookSecret, now.Add(-4*time.Minute)),
		},
		{
			name:    "wrong secret",
			header:  signedHeader(payload, "whsec_other", now),
			wantErr: webhook.ErrNoValidSignature,
		},
		{
			name:    "too old",
			header:  signedHeader(payload, testWebhookSecret, now.Add(-6*time.Minute)),
			wantErr: webhook.ErrTooOld,
		},
		{
			name:    "missing header",
			header:  "",
			wantErr: webhook.ErrNotSigned,
		},
		{
			name:    "no v1 entry",
			header:  fmt.Sprintf("t=%d,v0=abc", now.Unix()),
			wantErr: webhook.ErrNoValidSignature,
		},
		{
			name:    "bad timestamp",
			header:  "t=yesterday,v1=abc",
			wantErr: webhook.ErrInvalidHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ConstructEvent(payload, tt.header, testWebhookSecret)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, stripe.EventTypeCheckoutSessionCompleted, event.Type)
				assert.JSONEq(t, `{"id":"cs_1"}`, string(event.Data.Raw))
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsSignatureError(err))
		})
	}
}

func TestConstructEvent_TamperedPayload(t *testing.T) {
	header := signedHeader([]byte(`{"amount":100}`), testWebhookSecret, time.Now())

	_, err := ConstructEvent([]byte(`{"amount":1}`), header, testWebhookSecret)
	assert.ErrorIs(t, err, webhook.ErrNoValidSignature)
}

func TestConstructEvent_SignedGarbage(t *testing.T) {
	payload := []byte(`not json`)

	_, err := ConstructEvent(payload, signedHeader(payload, testWebhookSecret, time.Now()), testWebhookSecret)
	require.Error(t, err)
	assert.False(t, IsSignatureError(err))
}

func TestIsSignatureError(t *testing.T) {
	assert.True(t, IsSignatureError(fmt.Errorf("wrapped: %w", webhook.ErrTooOld)))
	assert.False(t, IsSignatureError(errors.New("boom")))
	assert.False(t, IsSignatureError(nil))
}

func TestEventType(t *testing.T) {
	assert.Equal(t, "customer.subscription.deleted", EventType([]byte(`{"id":"evt_1","type":"customer.subscription.deleted"}`)))
	assert.Equal(t, "unknown", EventType([]byte(`{"id":"evt_1"}`)))
	assert.Equal(t, "unknown", EventType([]byte(`not json`)))
}
