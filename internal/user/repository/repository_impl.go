package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/payhook/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.User, error) {
	return r.findOne(ctx, db, "stripe_customer_id = ?", customerID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Where(query, arg).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
