package domain

import (
	"errors"
	"strings"
)

var (
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrProviderNotConfigured = errors.New("provider_not_configured")
	ErrMissingSignature      = errors.New("missing_signature")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrStorage               = errors.New("storage_error")
	ErrInvalidPageToken      = errors.New("invalid_page_token")
)

// SignatureError carries the client-facing detail of a rejected delivery.
// It unwraps to ErrMissingSignature or ErrInvalidSignature.
type SignatureError struct {
	Kind   error
	Header string
	Detail string
}

func (e *SignatureError) Error() string {
	msg := e.Kind.Error()
	if header := strings.TrimSpace(e.Header); header != "" {
		msg += ": " + header
	}
	if detail := strings.TrimSpace(e.Detail); detail != "" {
		msg += ": " + detail
	}
	return msg
}

func (e *SignatureError) Unwrap() error { return e.Kind }

func NewMissingSignatureError(header string) error {
	return &SignatureError{Kind: ErrMissingSignature, Header: header}
}

func NewInvalidSignatureError(header, detail string) error {
	return &SignatureError{Kind: ErrInvalidSignature, Header: header, Detail: detail}
}
