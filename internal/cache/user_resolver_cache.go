package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultUserTTL  = 10 * time.Minute
	keyUserCustomer = "payhook:user:customer:%s"
)

// UserResolverCache stores customer to user links for the ingest hot path.
// Only positive lookups are cached so a newly linked customer resolves on
// the next delivery.
type UserResolverCache interface {
	GetUserID(ctx context.Context, customerID string) (string, bool)
	SetUserID(ctx context.Context, customerID, userID string)
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type redisUserResolverCache struct {
	client redisKV
	ttl    time.Duration
	log    *zap.Logger
}

// NewUserResolverCache returns a no-op cache when client is nil.
func NewUserResolverCache(client *redis.Client, log *zap.Logger) UserResolverCache {
	if client == nil {
		return noopUserResolverCache{}
	}
	return newRedisUserResolverCache(client, defaultUserTTL, log)
}

func newRedisUserResolverCache(client redisKV, ttl time.Duration, log *zap.Logger) *redisUserResolverCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &redisUserResolverCache{
		client: client,
		ttl:    ttl,
		log:    log.Named("cache.user"),
	}
}

func (c *redisUserResolverCache) GetUserID(ctx context.Context, customerID string) (string, bool) {
	key := userCustomerKey(customerID)
	if key == "" {
		return "", false
	}
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("user cache read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

func (c *redisUserResolverCache) SetUserID(ctx context.Context, customerID, userID string) {
	key := userCustomerKey(customerID)
	if key == "" || strings.TrimSpace(userID) == "" {
		return
	}
	if err := c.client.Set(ctx, key, userID, c.ttl).Err(); err != nil {
		c.log.Debug("user cache write failed", zap.String("key", key), zap.Error(err))
	}
}

type noopUserResolverCache struct{}

func (noopUserResolverCache) GetUserID(context.Context, string) (string, bool) { return "", false }

func (noopUserResolverCache) SetUserID(context.Context, string, string) {}

func userCustomerKey(customerID string) string {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return ""
	}
	return fmt.Sprintf(keyUserCustomer, customerID)
}
