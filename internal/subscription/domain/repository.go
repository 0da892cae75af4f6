package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts record or overwrites the mutable fields of the row with
	// the same provider subscription id in a single statement.
	Upsert(ctx context.Context, db *gorm.DB, record *SubscriptionRecord) error
	// MarkCanceled reports whether a row was updated.
	MarkCanceled(ctx context.Context, db *gorm.DB, providerSubscriptionID string, canceledAt, now time.Time) (bool, error)
	FindByProviderID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*SubscriptionRecord, error)
}
