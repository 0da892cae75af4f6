package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/payhook/internal/webhook/domain"
	"github.com/smallbiznis/payhook/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert reports whether a new row was written. A conflicting provider event
// id leaves the stored row untouched and is not an error.
func (r *repo) Insert(ctx context.Context, conn *gorm.DB, event *domain.NormalizedEvent) (bool, error) {
	res := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, fmt.Errorf("%w: insert webhook event: %v", domain.ErrStorage, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByProviderEventID(ctx context.Context, conn *gorm.DB, providerEventID string) (*domain.NormalizedEvent, error) {
	var item domain.NormalizedEvent
	err := conn.WithContext(ctx).
		Where("provider_event_id = ?", strings.TrimSpace(providerEventID)).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: find webhook event: %v", domain.ErrStorage, err)
	}
	return &item, nil
}

func (r *repo) ListByUser(ctx context.Context, conn *gorm.DB, userID string, filter domain.ListFilter) ([]*domain.NormalizedEvent, error) {
	query := conn.WithContext(ctx).
		Model(&domain.NormalizedEvent{}).
		Where("user_id = ?", userID)

	if !filter.BeforeCreatedAt.IsZero() {
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			filter.BeforeCreatedAt,
			filter.BeforeCreatedAt,
			filter.BeforeID,
		)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var items []*domain.NormalizedEvent
	if err := query.Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("%w: list webhook events: %v", domain.ErrStorage, err)
	}
	return items, nil
}

func (r *repo) MarkProcessed(ctx context.Context, conn *gorm.DB, providerEventID string) error {
	err := conn.WithContext(ctx).
		Model(&domain.NormalizedEvent{}).
		Where("provider_event_id = ?", providerEventID).
		Update("processed", true).Error
	if err != nil {
		return fmt.Errorf("%w: mark webhook event processed: %v", domain.ErrStorage, err)
	}
	return nil
}
