package domain

import (
	"context"
	"net/http"
)

type IngestResult struct {
	EventType    string `json:"event_type"`
	PayloadStyle string `json:"payload_style"`
	Duplicate    bool   `json:"-"`
}

type ListUserWebhooksRequest struct {
	UserID    string
	PageToken string
	PageSize  int
}

type ListUserWebhooksResponse struct {
	Webhooks      []WebhookSummary `json:"webhooks"`
	NextPageToken string           `json:"next_page_token,omitempty"`
	HasMore       bool             `json:"has_more"`
}

type Service interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (*IngestResult, error)
	ListUserWebhooks(ctx context.Context, req ListUserWebhooksRequest) (ListUserWebhooksResponse, error)
}
