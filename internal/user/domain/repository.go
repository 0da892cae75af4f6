package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*User, error)
	FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*User, error)
}
