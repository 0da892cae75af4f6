package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/config"
	userdomain "github.com/smallbiznis/payhook/internal/user/domain"
	"github.com/smallbiznis/payhook/internal/webhook/adapters"
	"github.com/smallbiznis/payhook/internal/webhook/adapters/stripe"
	"github.com/smallbiznis/payhook/internal/webhook/domain"
	"github.com/smallbiznis/payhook/internal/webhook/publisher"
	"github.com/smallbiznis/payhook/internal/webhook/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

type fakeUsers struct {
	links map[string]string
}

func (f *fakeUsers) Resolve(ctx context.Context, customerID *string) *string {
	if customerID == nil {
		return nil
	}
	if userID, ok := f.links[*customerID]; ok {
		return &userID
	}
	return nil
}

func (f *fakeUsers) FindByCustomer(ctx context.Context, customerID string) (string, error) {
	if userID, ok := f.links[customerID]; ok {
		return userID, nil
	}
	return "", userdomain.ErrUserNotFound
}

func (f *fakeUsers) Exists(ctx context.Context, userID string) (bool, error) {
	return true, nil
}

type recordingPublisher struct {
	events []*domain.NormalizedEvent
	err    error
}

func (r *recordingPublisher) PublishIfRelevant(ctx context.Context, event *domain.NormalizedEvent) publisher.PublishResult {
	if !domain.ShouldPublish(event.EventType) {
		return publisher.PublishResult{}
	}
	r.events = append(r.events, event)
	if r.err != nil {
		return publisher.PublishResult{Relevant: true, Err: r.err}
	}
	return publisher.PublishResult{Relevant: true, Published: true}
}

type failingRepo struct {
	domain.Repository
}

func (failingRepo) Insert(ctx context.Context, db *gorm.DB, event *domain.NormalizedEvent) (bool, error) {
	return false, fmt.Errorf("%w: disk full", domain.ErrStorage)
}

type testEnv struct {
	db        *gorm.DB
	svc       domain.Service
	publisher *recordingPublisher
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.NormalizedEvent{}))
	return conn
}

func newTestEnv(t *testing.T, repo domain.Repository, secret string) *testEnv {
	t.Helper()
	return newTestEnvWithLog(t, repo, secret, zap.NewNop())
}

func newTestEnvWithLog(t *testing.T, repo domain.Repository, secret string, log *zap.Logger) *testEnv {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	if repo == nil {
		repo = repository.Provide()
	}
	providers := map[string]config.ProviderConfig{}
	if secret != "" {
		providers["stripe"] = config.ProviderConfig{Secret: secret}
	}

	conn := setupTestDB(t)
	pub := &recordingPublisher{}
	svc := New(Params{
		DB:        conn,
		Log:       log,
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		Repo:      repo,
		Adapters:  adapters.NewRegistry(stripe.NewFactory()),
		Webhooks:  config.NewStaticWebhookConfigHolder(config.WebhookConfig{Providers: providers}),
		Users:     &fakeUsers{links: map[string]string{"cus_1": "user_1"}},
		Publisher: pub,
	})
	return &testEnv{db: conn, svc: svc, publisher: pub}
}

func signedHeaders(payload []byte) http.Header {
	timestamp := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, payload)))

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func countEvents(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&domain.NormalizedEvent{}).Count(&count).Error)
	return count
}

const subscriptionUpdated = `{"id":"evt_sub_1","object":"event","type":"customer.subscription.updated","api_version":"2024-06-20","livemode":false,"created":1717232400,"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active","items":{"data":[{"price":{"id":"price_1","unit_amount":1500,"currency":"usd","recurring":{"interval":"month"}}}]}}}}`

func TestIngestStoresResolvesAndPublishes(t *testing.T) {
	env := newTestEnv(t, nil, testSecret)
	payload := []byte(subscriptionUpdated)

	res, err := env.svc.Ingest(context.Background(), "Stripe", payload, signedHeaders(payload))
	require.NoError(t, err)
	assert.Equal(t, "customer.subscription.updated", res.EventType)
	assert.Equal(t, domain.PayloadStyleSnapshot, res.PayloadStyle)
	assert.False(t, res.Duplicate)

	var stored domain.NormalizedEvent
	require.NoError(t, env.db.Where("provider_event_id = ?", "evt_sub_1").Take(&stored).Error)
	assert.Equal(t, "stripe", stored.Provider)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "user_1", *stored.UserID)
	assert.Equal(t, "sub_1", *stored.SubscriptionID)
	assert.Equal(t, int64(1500), *stored.Amount)
	assert.Equal(t, "2024-06-20", *stored.APIVersion)
	assert.False(t, stored.Processed)
	assert.JSONEq(t, subscriptionUpdated, string(stored.Payload))

	require.Len(t, env.publisher.events, 1)
}

func TestIngestLogsSnapshotCompleteness(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	env := newTestEnvWithLog(t, nil, testSecret, zap.New(core))

	full := []byte(subscriptionUpdated)
	_, err := env.svc.Ingest(context.Background(), "stripe", full, signedHeaders(full))
	require.NoError(t, err)

	stub := []byte(`{"id":"evt_stub","object":"event","type":"customer.subscription.updated","created":1717232400,"data":{"object":{"id":"sub_1","object":"subscription"}}}`)
	_, err = env.svc.Ingest(context.Background(), "stripe", stub, signedHeaders(stub))
	require.NoError(t, err)

	stored := logs.FilterMessage("webhook event stored").All()
	require.Len(t, stored, 2)
	assert.Equal(t, "evt_sub_1", stored[0].ContextMap()["provider_event_id"])
	assert.Equal(t, true, stored[0].ContextMap()["full_snapshot"])
	assert.Equal(t, "evt_stub", stored[1].ContextMap()["provider_event_id"])
	assert.Equal(t, false, stored[1].ContextMap()["full_snapshot"])
}

func TestIngestRedeliveryIsIdempotentAndRepublishes(t *testing.T) {
	env := newTestEnv(t, nil, testSecret)
	payload := []byte(subscriptionUpdated)

	_, err := env.svc.Ingest(context.Background(), "stripe", payload, signedHeaders(payload))
	require.NoError(t, err)
	res, err := env.svc.Ingest(context.Background(), "stripe", payload, signedHeaders(payload))
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(1), countEvents(t, env.db))
	assert.Len(t, env.publisher.events, 2)
}

func TestIngestRejectsBadSignaturesWithoutWriting(t *testing.T) {
	env := newTestEnv(t, nil, testSecret)
	payload := []byte(subscriptionUpdated)

	_, err := env.svc.Ingest(context.Background(), "stripe", payload, http.Header{})
	assert.ErrorIs(t, err, domain.ErrMissingSignature)

	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=1,v1=deadbeef")
	_, err = env.svc.Ingest(context.Background(), "stripe", payload, headers)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	assert.Zero(t, countEvents(t, env.db))
	assert.Empty(t, env.publisher.events)
}

func TestIngestUnknownAndUnconfiguredProviders(t *testing.T) {
	env := newTestEnv(t, nil, testSecret)
	_, err := env.svc.Ingest(context.Background(), "paddle", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	unconfigured := newTestEnv(t, nil, "")
	_, err = unconfigured.svc.Ingest(context.Background(), "stripe", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, domain.ErrProviderNotConfigured)
}

func TestIngestThinEventAndUnknownCustomer(t *testing.T) {
	env := newTestEnv(t, nil, testSecret)
	payload := []byte(`{"id":"evt_thin","object":"v2.core.event","type":"v1.customer.updated","created":1717232400,"related_object":{"id":"cus_unlinked","type":"customer","url":"/v1/customers/cus_unlinked"}}`)

	res, err := env.svc.Ingest(context.Background(), "stripe", payload, signedHeaders(payload))
	require.NoError(t, err)
	assert.Equal(t, domain.PayloadStyleThin, res.PayloadStyle)

	var stored domain.NormalizedEvent
	require.NoError(t, env.db.Where("provider_event_id = ?", "evt_thin").Take(&stored).Error)
	assert.Equal(t, "cus_unlinked", *stored.CustomerID)
	assert.Nil(t, stored.UserID)
	assert.Empty(t, env.publisher.events)
}

func TestIngestPublishFailureDoesNotFailDelivery(t *testing.T) {
	env := newTestEnv(t, nil, testSecret)
	env.publisher.err = errors.New("broker down")
	payload := []byte(subscriptionUpdated)

	_, err := env.svc.Ingest(context.Background(), "stripe", payload, signedHeaders(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(1), countEvents(t, env.db))
}

func TestIngestStorageFailure(t *testing.T) {
	env := newTestEnv(t, failingRepo{}, testSecret)
	payload := []byte(subscriptionUpdated)

	_, err := env.svc.Ingest(context.Background(), "stripe", payload, signedHeaders(payload))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Empty(t, env.publisher.events)
}

func TestListUserWebhooksPaginates(t *testing.T) {
	env := newTestEnv(t, nil, testSecret)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		payload := []byte(fmt.Sprintf(`{"id":"evt_%d","type":"invoice.paid","data":{"object":{"id":"in_%d","object":"invoice","customer":"cus_1","amount_due":100}}}`, i, i))
		_, err := env.svc.Ingest(ctx, "stripe", payload, signedHeaders(payload))
		require.NoError(t, err)
	}

	first, err := env.svc.ListUserWebhooks(ctx, domain.ListUserWebhooksRequest{UserID: "user_1", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Webhooks, 2)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := env.svc.ListUserWebhooks(ctx, domain.ListUserWebhooksRequest{UserID: "user_1", PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Webhooks, 1)
	assert.False(t, second.HasMore)

	seen := map[string]bool{}
	for _, w := range append(first.Webhooks, second.Webhooks...) {
		seen[w.ProviderEventID] = true
	}
	assert.Len(t, seen, 3)

	_, err = env.svc.ListUserWebhooks(ctx, domain.ListUserWebhooksRequest{UserID: "user_1", PageToken: "!!"})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)

	empty, err := env.svc.ListUserWebhooks(ctx, domain.ListUserWebhooksRequest{UserID: "user_2"})
	require.NoError(t, err)
	assert.Empty(t, empty.Webhooks)
}
