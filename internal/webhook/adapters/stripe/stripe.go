package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/payhook/internal/webhook/domain"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	providerName    = "stripe"
	signatureHeader = "Stripe-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, domain.ErrProviderNotConfigured
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	return &Adapter{
		webhookSecret: secret,
		tolerance:     tolerance,
	}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
}

func (a *Adapter) SignatureHeader() string {
	return signatureHeader
}

// Verify validates the header against the exact request bytes and only then
// decodes them. The bytes are never re-encoded before validation.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) (*domain.ProviderEvent, error) {
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return nil, domain.NewMissingSignatureError(signatureHeader)
	}

	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, a.webhookSecret, a.tolerance); err != nil {
		return nil, domain.NewInvalidSignatureError(signatureHeader, err.Error())
	}

	var event domain.ProviderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.NewInvalidSignatureError(signatureHeader, "payload is not a valid event")
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, domain.NewInvalidSignatureError(signatureHeader, "event id and type are required")
	}
	event.Raw = payload

	return &event, nil
}
