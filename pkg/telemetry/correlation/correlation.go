package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/payhook/internal/observability/context"
)

// HeaderKey carries the correlation id on pub/sub messages.
const HeaderKey = "x-correlation-id"

// NewID returns a lexically sortable identifier.
func NewID() string {
	return ulid.Make().String()
}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	return obscontext.CorrelationIDFromContext(ctx)
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if strings.TrimSpace(id) == "" {
		return ctx
	}
	return obscontext.WithCorrelationID(ctx, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = NewID()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// InjectHeaders copies the context correlation id into headers, falling back
// to fallback when the context carries none.
func InjectHeaders(ctx context.Context, headers map[string]string, fallback string) map[string]string {
	if headers == nil {
		headers = map[string]string{}
	}
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = fallback
	}
	if cid != "" {
		headers[HeaderKey] = cid
	}
	return headers
}

// ContextFromHeaders is the consumer side of InjectHeaders.
func ContextFromHeaders(ctx context.Context, headers map[string]string) context.Context {
	return ContextWithCorrelationID(ctx, headers[HeaderKey])
}
