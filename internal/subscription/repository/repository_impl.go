package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/payhook/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var upsertColumns = []string{
	"status",
	"plan_id",
	"amount",
	"currency",
	"billing_interval",
	"current_period_start",
	"current_period_end",
	"cancel_at_period_end",
	"canceled_at",
	"updated_at",
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *domain.SubscriptionRecord) error {
	if strings.TrimSpace(record.Status) == "" {
		record.Status = domain.StatusActive
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_subscription_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(record).Error
}

func (r *repo) MarkCanceled(ctx context.Context, db *gorm.DB, providerSubscriptionID string, canceledAt, now time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.SubscriptionRecord{}).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Updates(map[string]any{
			"status":      domain.StatusCanceled,
			"canceled_at": canceledAt,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*domain.SubscriptionRecord, error) {
	var record domain.SubscriptionRecord
	err := db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
