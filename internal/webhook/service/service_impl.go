package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/observability/metrics"
	"github.com/smallbiznis/payhook/internal/observability/tracing"
	userdomain "github.com/smallbiznis/payhook/internal/user/domain"
	"github.com/smallbiznis/payhook/internal/webhook/adapters"
	"github.com/smallbiznis/payhook/internal/webhook/domain"
	"github.com/smallbiznis/payhook/internal/webhook/normalize"
	"github.com/smallbiznis/payhook/internal/webhook/publisher"
	"github.com/smallbiznis/payhook/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeVerified         = "verified"
	outcomeUnsupported      = "unsupported"
	outcomeNotConfigured    = "not_configured"
	outcomeMissingSignature = "missing_signature"
	outcomeInvalidSignature = "invalid_signature"

	outcomeInserted  = "inserted"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// EventPublisher is the best-effort propagation step after a durable write.
type EventPublisher interface {
	PublishIfRelevant(ctx context.Context, event *domain.NormalizedEvent) publisher.PublishResult
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Adapters  *adapters.Registry
	Webhooks  *config.WebhookConfigHolder
	Users     userdomain.Service
	Publisher EventPublisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	adapters  *adapters.Registry
	webhooks  *config.WebhookConfigHolder
	users     userdomain.Service
	publisher EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("webhook.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		adapters:  p.Adapters,
		webhooks:  p.Webhooks,
		users:     p.Users,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		tracer:    otel.Tracer("payhook.webhook"),
	}
}

// Ingest runs one delivery through verify, normalize, resolve, store and
// publish. Errors returned before the store step are client errors; the
// store error is the only failure after verification.
func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (*domain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))

	ctx, span := s.tracer.Start(ctx, "webhook.ingest")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("provider", provider))...)

	event, err := s.verify(ctx, provider, payload, headers)
	if err != nil {
		span.SetStatus(codes.Error, "verification failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("event_type", event.Type))

	record, parsed := normalize.Normalize(provider, event, s.clock.Now())
	record.ID = s.genID.Generate()
	record.UserID = s.users.Resolve(ctx, record.CustomerID)

	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		s.metrics.RecordWebhookStored(ctx, provider, record.EventType, outcomeFailed)
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "store failed")
		s.log.Error("store webhook event failed",
			zap.String("provider", provider),
			zap.String("provider_event_id", record.ProviderEventID),
			zap.String("event_type", record.EventType),
			zap.Error(err),
		)
		return nil, err
	}

	log := s.log.With(
		zap.String("provider", provider),
		zap.String("provider_event_id", record.ProviderEventID),
		zap.String("event_type", record.EventType),
	)
	if inserted {
		s.metrics.RecordWebhookStored(ctx, provider, record.EventType, outcomeInserted)
		snapshot, isSnapshot := parsed.(normalize.SnapshotObject)
		log.Info("webhook event stored",
			zap.Bool("user_resolved", record.UserID != nil),
			zap.Bool("full_snapshot", isSnapshot && snapshot.Full()),
		)
	} else {
		s.metrics.RecordWebhookStored(ctx, provider, record.EventType, outcomeDuplicate)
		log.Info("duplicate webhook delivery ignored")
	}

	// Redeliveries publish again; consumers are idempotent.
	s.publisher.PublishIfRelevant(ctx, record)

	return &domain.IngestResult{
		EventType:    record.EventType,
		PayloadStyle: normalize.PayloadStyle(parsed),
		Duplicate:    !inserted,
	}, nil
}

func (s *Service) verify(ctx context.Context, provider string, payload []byte, headers http.Header) (*domain.ProviderEvent, error) {
	if provider == "" || s.adapters == nil || !s.adapters.ProviderExists(provider) {
		s.metrics.RecordWebhookReceived(ctx, provider, outcomeUnsupported)
		return nil, domain.ErrProviderNotFound
	}

	var providerCfg config.ProviderConfig
	if s.webhooks != nil {
		providerCfg, _ = s.webhooks.Get().Provider(provider)
	}
	adapter, err := s.adapters.NewAdapter(provider, domain.AdapterConfig{
		Secret:    providerCfg.Secret,
		Tolerance: providerCfg.Tolerance,
	})
	if err != nil {
		s.metrics.RecordWebhookReceived(ctx, provider, outcomeNotConfigured)
		s.log.Error("webhook provider not configured", zap.String("provider", provider), zap.Error(err))
		return nil, err
	}

	event, err := adapter.Verify(ctx, payload, headers)
	if err != nil {
		outcome := outcomeInvalidSignature
		if errors.Is(err, domain.ErrMissingSignature) {
			outcome = outcomeMissingSignature
		}
		s.metrics.RecordWebhookReceived(ctx, provider, outcome)
		s.log.Warn("webhook rejected", zap.String("provider", provider), zap.String("reason", outcome), zap.Error(err))
		return nil, err
	}

	s.metrics.RecordWebhookReceived(ctx, provider, outcomeVerified)
	return event, nil
}

func (s *Service) ListUserWebhooks(ctx context.Context, req domain.ListUserWebhooksRequest) (domain.ListUserWebhooksResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.ListUserWebhooksResponse{}, userdomain.ErrInvalidUserID
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Size()
	filter := domain.ListFilter{Limit: limit + 1}

	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListUserWebhooksResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		createdAt := cursor.Time()
		if err != nil || createdAt.IsZero() {
			return domain.ListUserWebhooksResponse{}, domain.ErrInvalidPageToken
		}
		filter.BeforeID = id
		filter.BeforeCreatedAt = createdAt
	}

	items, err := s.repo.ListByUser(ctx, s.db, userID, filter)
	if err != nil {
		return domain.ListUserWebhooksResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(e *domain.NormalizedEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	webhooks := make([]domain.WebhookSummary, 0, len(items))
	for _, item := range items {
		webhooks = append(webhooks, item.Summary())
	}

	resp := domain.ListUserWebhooksResponse{Webhooks: webhooks}
	if pageInfo != nil {
		resp.NextPageToken = pageInfo.NextPageToken
		resp.HasMore = pageInfo.HasMore
	}
	return resp, nil
}
