package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Limit int
	// Before is an exclusive keyset bound; zero values mean the first page.
	BeforeCreatedAt time.Time
	BeforeID        snowflake.ID
}

type Repository interface {
	// Insert stores event unless its provider event id already exists.
	Insert(ctx context.Context, db *gorm.DB, event *NormalizedEvent) (bool, error)
	FindByProviderEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*NormalizedEvent, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, filter ListFilter) ([]*NormalizedEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, providerEventID string) error
}
