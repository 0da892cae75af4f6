package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "stripe"),
		attribute.String("customer_id", "cus_123"),
		attribute.String("event_type", "invoice.paid"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "provider" && attrs[1].Key != "provider" {
		t.Fatalf("expected provider to be retained")
	}
	if attrs[0].Key != "event_type" && attrs[1].Key != "event_type" {
		t.Fatalf("expected event_type to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordWebhookReceived(context.Background(), "stripe", "verified")
	m.RecordWebhookStored(context.Background(), "stripe", "invoice.paid", "stored")
	m.RecordWebhookPublished(context.Background(), "invoice.paid", "published")
	m.RecordSubscriptionProjected(context.Background(), "updated", "applied")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "payhook-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordWebhookStored(context.Background(), "stripe", "invoice.paid", "duplicate")
}
