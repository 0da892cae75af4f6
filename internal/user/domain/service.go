package domain

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound  = errors.New("user_not_found")
	ErrInvalidUserID = errors.New("invalid_user_id")
)

type Service interface {
	// Resolve maps a provider customer id to a user id. Every failure,
	// including an unknown customer, yields nil.
	Resolve(ctx context.Context, customerID *string) *string
	// FindByCustomer returns ErrUserNotFound when no user carries the id.
	FindByCustomer(ctx context.Context, customerID string) (string, error)
	Exists(ctx context.Context, userID string) (bool, error)
}
