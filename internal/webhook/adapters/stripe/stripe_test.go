package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/payhook/internal/webhook/domain"
)

const testSecret = "whsec_test"

func TestStripeVerifyValidSignature(t *testing.T) {
	adapter := newTestAdapter(t)
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid","created":1700000000,"data":{"object":{"id":"in_1","object":"invoice"}}}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", buildStripeSignatureHeader(testSecret, payload, time.Now().Unix()))

	event, err := adapter.Verify(context.Background(), payload, headers)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if event.ID != "evt_1" || event.Type != "invoice.paid" {
		t.Fatalf("unexpected event %+v", event)
	}
	if string(event.Raw) != string(payload) {
		t.Fatalf("expected raw payload to be preserved")
	}
}

func TestStripeVerifyMissingSignature(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.Verify(context.Background(), []byte(`{}`), http.Header{})
	if !errors.Is(err, domain.ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
	var sigErr *domain.SignatureError
	if !errors.As(err, &sigErr) || sigErr.Header != "Stripe-Signature" {
		t.Fatalf("expected signature error naming the header, got %v", err)
	}
}

func TestStripeVerifyInvalidSignature(t *testing.T) {
	adapter := newTestAdapter(t)
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", buildStripeSignatureHeader("whsec_other", payload, time.Now().Unix()))

	_, err := adapter.Verify(context.Background(), payload, headers)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestStripeVerifyRejectsModifiedBytes(t *testing.T) {
	adapter := newTestAdapter(t)
	signed := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	reformatted := []byte(`{"id": "evt_1", "type": "invoice.paid"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", buildStripeSignatureHeader(testSecret, signed, time.Now().Unix()))

	if _, err := adapter.Verify(context.Background(), reformatted, headers); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected re-serialized payload to fail, got %v", err)
	}
}

func TestStripeVerifyRejectsStaleTimestamp(t *testing.T) {
	adapter := newTestAdapter(t)
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", buildStripeSignatureHeader(testSecret, payload, time.Now().Add(-time.Hour).Unix()))

	if _, err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected stale signature to fail, got %v", err)
	}
}

func TestStripeVerifyRejectsNonEventPayload(t *testing.T) {
	adapter := newTestAdapter(t)
	payload := []byte(`{"hello":"world"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", buildStripeSignatureHeader(testSecret, payload, time.Now().Unix()))

	if _, err := adapter.Verify(context.Background(), payload, headers); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected payload without id to fail, got %v", err)
	}
}

func TestStripeFactoryRequiresSecret(t *testing.T) {
	if _, err := NewFactory().NewAdapter(domain.AdapterConfig{Secret: "  "}); !errors.Is(err, domain.ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func newTestAdapter(t *testing.T) domain.Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(domain.AdapterConfig{Secret: testSecret, Tolerance: 5 * time.Minute})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
