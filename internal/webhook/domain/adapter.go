package domain

import (
	"context"
	"net/http"
	"time"
)

type AdapterConfig struct {
	Secret    string
	Tolerance time.Duration
}

// Adapter authenticates deliveries from one provider.
type Adapter interface {
	// SignatureHeader names the header the provider signs with.
	SignatureHeader() string
	// Verify checks the signature over the unmodified payload and decodes it.
	Verify(ctx context.Context, payload []byte, headers http.Header) (*ProviderEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}
