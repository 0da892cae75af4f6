package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/payhook/internal/cache"
	"github.com/smallbiznis/payhook/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.UserResolverCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.UserResolverCache
}

func New(p Params) domain.Service {
	userCache := p.Cache
	if userCache == nil {
		userCache = cache.NewUserResolverCache(nil, p.Log)
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("user.service"),
		repo:  p.Repo,
		cache: userCache,
	}
}

func (s *Service) Resolve(ctx context.Context, customerID *string) *string {
	if customerID == nil || strings.TrimSpace(*customerID) == "" {
		return nil
	}
	id := strings.TrimSpace(*customerID)

	userID, err := s.FindByCustomer(ctx, id)
	switch {
	case err == nil:
		return &userID
	case errors.Is(err, domain.ErrUserNotFound):
		// Customers are often created at the provider before they are linked.
		s.log.Warn("no user linked to customer", zap.String("customer_id", id))
	default:
		s.log.Error("user lookup failed", zap.String("customer_id", id), zap.Error(err))
	}
	return nil
}

func (s *Service) FindByCustomer(ctx context.Context, customerID string) (string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return "", domain.ErrUserNotFound
	}
	if userID, ok := s.cache.GetUserID(ctx, customerID); ok {
		return userID, nil
	}

	user, err := s.repo.FindByCustomerID(ctx, s.db, customerID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", domain.ErrUserNotFound
	}

	s.cache.SetUserID(ctx, customerID, user.ID)
	return user.ID, nil
}

func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, domain.ErrInvalidUserID
	}
	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}
