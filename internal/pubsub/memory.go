package pubsub

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	defaultMemoryBuffer  = 256
	defaultMemoryBacklog = 1024
)

// MemoryBroker is an in-process broker for single binary deployments and
// tests. Messages published before any subscription exists are held in a
// bounded backlog and handed to the first subscription of the topic.
type MemoryBroker struct {
	mu      sync.Mutex
	groups  map[string]map[string]chan Message
	backlog map[string][]Message
	done    chan struct{}
	closed  bool
	log     *zap.Logger
}

func NewMemoryBroker(log *zap.Logger) *MemoryBroker {
	if log == nil {
		log = zap.NewNop()
	}
	return &MemoryBroker{
		groups:  map[string]map[string]chan Message{},
		backlog: map[string][]Message{},
		done:    make(chan struct{}),
		log:     log.Named("pubsub.memory"),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	groups := b.groups[msg.Topic]
	if len(groups) == 0 {
		if len(b.backlog[msg.Topic]) >= defaultMemoryBacklog {
			b.mu.Unlock()
			b.log.Warn("memory backlog full, dropping message",
				zap.String("topic", msg.Topic),
				zap.String("message_id", msg.ID),
			)
			return nil
		}
		b.backlog[msg.Topic] = append(b.backlog[msg.Topic], msg)
		b.mu.Unlock()
		return nil
	}
	targets := make([]chan Message, 0, len(groups))
	for _, ch := range groups {
		targets = append(targets, ch)
	}
	b.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrClosed
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic, subscription string, handler Handler) error {
	ch, err := b.group(topic, subscription)
	if err != nil {
		return err
	}

	log := b.log.With(zap.String("topic", topic), zap.String("subscription", subscription))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		case msg := <-ch:
			b.deliver(ctx, log, msg, handler)
		}
	}
}

func (b *MemoryBroker) deliver(ctx context.Context, log *zap.Logger, msg Message, handler Handler) {
	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return
		}
		log.Warn("handler failed",
			zap.String("message_id", msg.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == defaultMaxAttempts || !retryDelay(ctx, attempt) {
			break
		}
	}
	log.Error("message dropped after retries", zap.String("message_id", msg.ID))
}

// group registers subscription on topic. Subscribers sharing a name share
// one queue.
func (b *MemoryBroker) group(topic, subscription string) (chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	groups, ok := b.groups[topic]
	if !ok {
		groups = map[string]chan Message{}
		b.groups[topic] = groups
	}
	if ch, ok := groups[subscription]; ok {
		return ch, nil
	}

	pending := b.backlog[topic]
	delete(b.backlog, topic)

	size := defaultMemoryBuffer
	if len(pending) > size {
		size = len(pending)
	}
	ch := make(chan Message, size)
	for _, msg := range pending {
		ch <- msg
	}
	groups[subscription] = ch
	return ch, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return nil
}
