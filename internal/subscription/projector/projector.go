package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payhook/internal/clock"
	obslogger "github.com/smallbiznis/payhook/internal/observability/logger"
	"github.com/smallbiznis/payhook/internal/observability/metrics"
	"github.com/smallbiznis/payhook/internal/observability/tracing"
	"github.com/smallbiznis/payhook/internal/pubsub"
	"github.com/smallbiznis/payhook/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
	"github.com/smallbiznis/payhook/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Webhooks webhookdomain.Repository
	Metrics  *metrics.Metrics         `optional:"true"`
	Pipeline *metrics.PipelineMetrics `optional:"true"`
}

// Projector applies published webhook events to the subscriptions table.
// Every write is one atomic statement, so concurrent deliveries need no locks.
type Projector struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	webhooks webhookdomain.Repository
	metrics  *metrics.Metrics
	pipeline *metrics.PipelineMetrics
	tracer   trace.Tracer
}

func New(p Params) *Projector {
	return &Projector{
		db:       p.DB,
		log:      p.Log.Named("subscription.projector"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		webhooks: p.Webhooks,
		metrics:  p.Metrics,
		pipeline: p.Pipeline,
		tracer:   otel.Tracer("payhook.subscription.projector"),
	}
}

// Handle returns an error only when redelivery could succeed.
func (p *Projector) Handle(ctx context.Context, evt webhookdomain.PublishedEvent) error {
	action, ok := subscriptionAction(evt.EventType)
	if !ok || isBlank(evt.SubscriptionID) || isBlank(evt.UserID) {
		p.record(ctx, actionLabel(action), metrics.ProjectionOutcomeSkipped)
		p.log.Debug("event skipped by projector",
			zap.String("provider_event_id", evt.ProviderEventID),
			zap.String("event_type", evt.EventType),
		)
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "subscription.project", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("event_type", evt.EventType),
		attribute.String("action", action),
	)...)

	start := time.Now()
	var err error
	switch action {
	case ActionCreated, ActionUpdated:
		err = p.upsert(ctx, evt)
	case ActionDeleted:
		err = p.cancel(ctx, evt)
	}
	p.pipeline.ObserveApply(action, time.Since(start))

	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "projection failed")
		p.record(ctx, action, metrics.ProjectionOutcomeFailed)
		p.pipeline.IncError(action, err)
		return fmt.Errorf("project %s for %s: %w", evt.EventType, *evt.SubscriptionID, err)
	}

	p.record(ctx, action, metrics.ProjectionOutcomeApplied)

	if err := p.webhooks.MarkProcessed(ctx, p.db, evt.ProviderEventID); err != nil {
		p.log.Warn("mark webhook event processed failed",
			zap.String("provider_event_id", evt.ProviderEventID),
			zap.Error(err),
		)
	}
	return nil
}

// HandleMessage decodes a transport message and projects it. Undecodable
// messages are acknowledged so they do not block the subscription.
func (p *Projector) HandleMessage(ctx context.Context, msg pubsub.Message) error {
	ctx = tracing.ExtractHeaders(ctx, msg.Headers)
	ctx = correlation.ContextFromHeaders(ctx, msg.Headers)
	log := obslogger.WithContext(ctx, p.log)

	if !msg.PublishedAt.IsZero() {
		p.pipeline.ObserveDeliveryLag(p.clock.Now().Sub(msg.PublishedAt))
	}

	var evt webhookdomain.PublishedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		p.pipeline.IncError("decode", fmt.Errorf("%w: %v", metrics.ErrDecode, err))
		log.Error("dropping undecodable message",
			zap.String("message_id", msg.ID),
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
		return nil
	}

	return p.Handle(ctx, evt)
}

func (p *Projector) upsert(ctx context.Context, evt webhookdomain.PublishedEvent) error {
	now := p.clock.Now()
	record := &domain.SubscriptionRecord{
		ID:                     p.genID.Generate(),
		UserID:                 *evt.UserID,
		ProviderSubscriptionID: *evt.SubscriptionID,
		ProviderCustomerID:     evt.CustomerID,
		PlanID:                 evt.PlanID,
		Amount:                 evt.Amount,
		Currency:               evt.Currency,
		Interval:               evt.Interval,
		CurrentPeriodStart:     evt.CurrentPeriodStart,
		CurrentPeriodEnd:       evt.CurrentPeriodEnd,
		CancelAtPeriodEnd:      evt.CancelAtPeriodEnd,
		CanceledAt:             evt.CanceledAt,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if evt.SubscriptionStatus != nil {
		record.Status = strings.TrimSpace(*evt.SubscriptionStatus)
	}
	return p.repo.Upsert(ctx, p.db, record)
}

func (p *Projector) cancel(ctx context.Context, evt webhookdomain.PublishedEvent) error {
	now := p.clock.Now()
	canceledAt := now
	if evt.CanceledAt != nil {
		canceledAt = *evt.CanceledAt
	}

	updated, err := p.repo.MarkCanceled(ctx, p.db, *evt.SubscriptionID, canceledAt, now)
	if err != nil {
		return err
	}
	if !updated {
		p.log.Info("cancel for unknown subscription ignored",
			zap.String("provider_event_id", evt.ProviderEventID),
			zap.String("subscription_id", *evt.SubscriptionID),
		)
	}
	return nil
}

func (p *Projector) record(ctx context.Context, action, outcome string) {
	p.metrics.RecordSubscriptionProjected(ctx, action, outcome)
	p.pipeline.IncMessage(action, outcome)
}

// projectedTypes are the only events that describe the subscription object
// itself. Other resources that reference a subscription, such as schedules or
// invoices, carry a subscription id but not its state.
var projectedTypes = map[string]string{
	"customer.subscription.created": ActionCreated,
	"customer.subscription.updated": ActionUpdated,
	"customer.subscription.deleted": ActionDeleted,
}

// subscriptionAction reports the action for a projected event type.
func subscriptionAction(eventType string) (string, bool) {
	action, ok := projectedTypes[strings.TrimSpace(eventType)]
	return action, ok
}

func actionLabel(action string) string {
	switch action {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return action
	default:
		return "other"
	}
}

func isBlank(value *string) bool {
	return value == nil || strings.TrimSpace(*value) == ""
}
