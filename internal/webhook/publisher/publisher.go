package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/observability/metrics"
	"github.com/smallbiznis/payhook/internal/observability/tracing"
	"github.com/smallbiznis/payhook/internal/pubsub"
	"github.com/smallbiznis/payhook/internal/webhook/domain"
	"github.com/smallbiznis/payhook/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomePublished = "published"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

type Params struct {
	fx.In

	Publisher pubsub.Publisher
	Config    config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Metrics   *metrics.Metrics `optional:"true"`
}

type EventPublisher struct {
	publisher pubsub.Publisher
	topic     string
	log       *zap.Logger
	clock     clock.Clock
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// PublishResult reports what happened to one event. Err is informational;
// a failed publish never fails the delivery that produced it.
type PublishResult struct {
	Relevant  bool
	Published bool
	Err       error
}

func New(p Params) *EventPublisher {
	topic := p.Config.PubSub.Topic
	if topic == "" {
		topic = config.DefaultTopic
	}
	return &EventPublisher{
		publisher: p.Publisher,
		topic:     topic,
		log:       p.Log.Named("webhook.publisher"),
		clock:     p.Clock,
		metrics:   p.Metrics,
		tracer:    otel.Tracer("payhook.webhook.publisher"),
	}
}

func (p *EventPublisher) PublishIfRelevant(ctx context.Context, event *domain.NormalizedEvent) PublishResult {
	if event == nil || !domain.ShouldPublish(event.EventType) {
		p.metrics.RecordWebhookPublished(ctx, eventType(event), outcomeSkipped)
		return PublishResult{}
	}

	ctx, span := p.tracer.Start(ctx, "webhook.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("messaging.destination.name", p.topic),
		attribute.String("event_type", event.EventType),
	)...)

	err := p.publish(ctx, event)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "publish failed")
		p.metrics.RecordWebhookPublished(ctx, event.EventType, outcomeFailed)
		p.log.Error("publish webhook event failed",
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("event_type", event.EventType),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
		return PublishResult{Relevant: true, Err: err}
	}

	p.metrics.RecordWebhookPublished(ctx, event.EventType, outcomePublished)
	p.log.Debug("webhook event published",
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_type", event.EventType),
	)
	return PublishResult{Relevant: true, Published: true}
}

func (p *EventPublisher) publish(ctx context.Context, event *domain.NormalizedEvent) error {
	if p.publisher == nil {
		return pubsub.ErrClosed
	}
	body, err := json.Marshal(event.ToPublished(p.clock.Now()))
	if err != nil {
		return fmt.Errorf("encode published event: %w", err)
	}

	msg := pubsub.NewMessage(p.topic, messageKey(event), body, nil)
	msg.Headers = tracing.InjectHeaders(ctx, msg.Headers)
	msg.Headers = correlation.InjectHeaders(ctx, msg.Headers, event.ProviderEventID)

	return p.publisher.Publish(ctx, msg)
}

// messageKey keeps every event of one subscription on the same partition.
func messageKey(event *domain.NormalizedEvent) string {
	if event.SubscriptionID != nil && *event.SubscriptionID != "" {
		return *event.SubscriptionID
	}
	return event.ProviderEventID
}

func eventType(event *domain.NormalizedEvent) string {
	if event == nil {
		return ""
	}
	return event.EventType
}
