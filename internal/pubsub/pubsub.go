package pubsub

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/payhook/pkg/telemetry/correlation"
)

var ErrClosed = errors.New("pubsub_closed")

const (
	headerMessageID = "x-message-id"

	defaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
)

// Message is the transport-neutral envelope every driver carries. Key is the
// partitioning key; drivers that support ordering keep one key in order.
type Message struct {
	ID          string
	Topic       string
	Key         string
	Body        []byte
	Headers     map[string]string
	PublishedAt time.Time
}

// NewMessage assigns a fresh id and copies headers.
func NewMessage(topic, key string, body []byte, headers map[string]string) Message {
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return Message{
		ID:          correlation.NewID(),
		Topic:       topic,
		Key:         key,
		Body:        body,
		Headers:     copied,
		PublishedAt: time.Now().UTC(),
	}
}

type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber delivers messages of topic to handler until ctx is canceled.
// Deliveries sharing a subscription name are load-balanced; each distinct
// subscription receives every message at least once.
type Subscriber interface {
	Subscribe(ctx context.Context, topic, subscription string, handler Handler) error
}

type Broker interface {
	Publisher
	Subscriber
	Close() error
}

// retryDelay backs off linearly between handler attempts.
func retryDelay(ctx context.Context, attempt int) bool {
	timer := time.NewTimer(time.Duration(attempt) * defaultRetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
