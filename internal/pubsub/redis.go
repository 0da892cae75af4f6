package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisReadCount   = 10
	redisReadBlock   = 5 * time.Second
	redisStreamMaxLn = 100000

	fieldID          = "id"
	fieldKey         = "key"
	fieldBody        = "body"
	fieldHeaders     = "headers"
	fieldPublishedAt = "published_at"
)

// streamClient is the subset of *redis.Client the streams broker uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// RedisStreamBroker maps a topic to a stream and a subscription to a
// consumer group. Entries are acked only after the handler succeeds.
type RedisStreamBroker struct {
	client   streamClient
	consumer string
	log      *zap.Logger
}

func NewRedisStreamBroker(client streamClient, consumer string, log *zap.Logger) *RedisStreamBroker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStreamBroker{
		client:   client,
		consumer: consumer,
		log:      log.Named("pubsub.redis"),
	}
}

func (b *RedisStreamBroker) Publish(ctx context.Context, msg Message) error {
	headers, err := json.Marshal(msg.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: msg.Topic,
		MaxLen: redisStreamMaxLn,
		Approx: true,
		Values: map[string]interface{}{
			fieldID:          msg.ID,
			fieldKey:         msg.Key,
			fieldBody:        string(msg.Body),
			fieldHeaders:     string(headers),
			fieldPublishedAt: msg.PublishedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// Subscribe first drains entries already pending for this consumer, then
// reads new ones. A failed entry stays pending and is retried from the
// pending list until its attempts run out.
func (b *RedisStreamBroker) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", group, err)
	}

	log := b.log.With(zap.String("topic", topic), zap.String("group", group), zap.String("consumer", b.consumer))
	log.Info("redis stream consumer started")

	attempts := map[string]int{}
	cursor := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}

		block := redisReadBlock
		if cursor == "0" {
			block = -1
		}
		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumer,
			Streams:  []string{topic, cursor},
			Count:    redisReadCount,
			Block:    block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("read group failed", zap.Error(err))
			if !retryDelay(ctx, 5) {
				return nil
			}
			continue
		}

		entries := 0
		failed := false
		for _, stream := range streams {
			for _, entry := range stream.Messages {
				entries++
				if b.deliver(ctx, log, topic, group, entry, handler, attempts) {
					continue
				}
				failed = true
			}
		}

		switch {
		case failed:
			cursor = "0"
			if !retryDelay(ctx, 1) {
				return nil
			}
		case cursor == "0" && entries == 0:
			cursor = ">"
		}
	}
}

// deliver reports whether the entry left the pending list.
func (b *RedisStreamBroker) deliver(
	ctx context.Context,
	log *zap.Logger,
	topic, group string,
	entry redis.XMessage,
	handler Handler,
	attempts map[string]int,
) bool {
	msg, err := fromStreamEntry(topic, entry)
	if err == nil {
		err = handler(ctx, msg)
	}
	if err != nil {
		attempts[entry.ID]++
		if attempts[entry.ID] < defaultMaxAttempts {
			log.Warn("handler failed",
				zap.String("entry_id", entry.ID),
				zap.Int("attempt", attempts[entry.ID]),
				zap.Error(err),
			)
			return false
		}
		log.Error("entry skipped after retries", zap.String("entry_id", entry.ID), zap.Error(err))
	}

	delete(attempts, entry.ID)
	if ackErr := b.client.XAck(ctx, topic, group, entry.ID).Err(); ackErr != nil {
		log.Warn("ack failed", zap.String("entry_id", entry.ID), zap.Error(ackErr))
		return false
	}
	return true
}

func (b *RedisStreamBroker) Close() error {
	return nil
}

func fromStreamEntry(topic string, entry redis.XMessage) (Message, error) {
	msg := Message{
		ID:      stringValue(entry.Values[fieldID]),
		Topic:   topic,
		Key:     stringValue(entry.Values[fieldKey]),
		Body:    []byte(stringValue(entry.Values[fieldBody])),
		Headers: map[string]string{},
	}
	if raw := stringValue(entry.Values[fieldHeaders]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.Headers); err != nil {
			return Message{}, fmt.Errorf("decode headers of %s: %w", entry.ID, err)
		}
	}
	if raw := stringValue(entry.Values[fieldPublishedAt]); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			msg.PublishedAt = ts
		}
	}
	if msg.ID == "" {
		msg.ID = entry.ID
	}
	return msg, nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
