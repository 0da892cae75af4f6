package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payhook/internal/user/domain"
	"github.com/smallbiznis/payhook/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type memoryCache struct {
	values map[string]string
	gets   int
}

func (m *memoryCache) GetUserID(ctx context.Context, customerID string) (string, bool) {
	m.gets++
	v, ok := m.values[customerID]
	return v, ok
}

func (m *memoryCache) SetUserID(ctx context.Context, customerID, userID string) {
	m.values[customerID] = userID
}

type failingRepo struct{}

func (failingRepo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return nil, errors.New("connection reset")
}

func (failingRepo) FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.User, error) {
	return nil, errors.New("connection reset")
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.User{}))

	customerID := "cus_linked"
	now := time.Now().UTC()
	require.NoError(t, conn.Create(&domain.User{
		ID:               "user_1",
		Email:            "ada@example.com",
		StripeCustomerID: &customerID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}).Error)
	return conn
}

func newTestService(t *testing.T, log *zap.Logger, repo domain.Repository, c *memoryCache) domain.Service {
	t.Helper()
	if repo == nil {
		repo = repository.Provide()
	}
	p := Params{DB: setupTestDB(t), Log: log, Repo: repo}
	if c != nil {
		p.Cache = c
	}
	return New(p)
}

func strPtr(v string) *string { return &v }

func TestResolveLinkedCustomer(t *testing.T) {
	c := &memoryCache{values: map[string]string{}}
	svc := newTestService(t, zap.NewNop(), nil, c)

	userID := svc.Resolve(context.Background(), strPtr("cus_linked"))
	require.NotNil(t, userID)
	assert.Equal(t, "user_1", *userID)
	assert.Equal(t, "user_1", c.values["cus_linked"])
}

func TestResolveUsesCache(t *testing.T) {
	c := &memoryCache{values: map[string]string{"cus_cached": "user_cached"}}
	svc := newTestService(t, zap.NewNop(), failingRepo{}, c)

	userID := svc.Resolve(context.Background(), strPtr("cus_cached"))
	require.NotNil(t, userID)
	assert.Equal(t, "user_cached", *userID)
}

func TestResolveNilCustomerShortCircuits(t *testing.T) {
	c := &memoryCache{values: map[string]string{}}
	svc := newTestService(t, zap.NewNop(), failingRepo{}, c)

	assert.Nil(t, svc.Resolve(context.Background(), nil))
	assert.Nil(t, svc.Resolve(context.Background(), strPtr("  ")))
	assert.Zero(t, c.gets)
}

func TestResolveUnknownCustomerWarns(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc := newTestService(t, zap.New(core), nil, nil)

	assert.Nil(t, svc.Resolve(context.Background(), strPtr("cus_unknown")))

	entries := logs.FilterMessage("no user linked to customer").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestResolveLookupFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc := newTestService(t, zap.New(core), failingRepo{}, nil)

	assert.Nil(t, svc.Resolve(context.Background(), strPtr("cus_any")))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestFindByCustomerAndExists(t *testing.T) {
	svc := newTestService(t, zap.NewNop(), nil, nil)
	ctx := context.Background()

	_, err := svc.FindByCustomer(ctx, "cus_unknown")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	ok, err := svc.Exists(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, "user_404")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Exists(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
}
