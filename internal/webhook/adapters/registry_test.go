package adapters

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/payhook/internal/webhook/domain"
)

type fakeFactory struct {
	provider string
}

func (f fakeFactory) Provider() string { return f.provider }

func (f fakeFactory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	return fakeAdapter{}, nil
}

type fakeAdapter struct{}

func (fakeAdapter) SignatureHeader() string { return "X-Signature" }

func (fakeAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) (*domain.ProviderEvent, error) {
	return &domain.ProviderEvent{}, nil
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	registry := NewRegistry(fakeFactory{provider: " Stripe "}, nil, fakeFactory{provider: ""})

	if !registry.ProviderExists("STRIPE") {
		t.Fatalf("expected stripe to be registered")
	}
	if _, err := registry.NewAdapter("stripe", domain.AdapterConfig{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := registry.NewAdapter("paddle", domain.AdapterConfig{}); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}

	var nilRegistry *Registry
	if nilRegistry.ProviderExists("stripe") {
		t.Fatalf("nil registry must not report providers")
	}
}
