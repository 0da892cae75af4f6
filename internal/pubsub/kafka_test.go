package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

// fakeReader serves queued messages and cancels the consumer once drained.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		f.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := f.queue[0]
	f.queue = f.queue[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestKafkaPublishCarriesKeyAndHeaders(t *testing.T) {
	fw := &fakeWriter{}
	broker := NewKafkaBrokerWithClients(fw, nil, zap.NewNop())

	msg := NewMessage("webhook-events", "sub_1", []byte(`{}`), map[string]string{"traceparent": "00-abc"})
	require.NoError(t, broker.Publish(context.Background(), msg))

	require.Len(t, fw.msgs, 1)
	got := fromKafkaMessage(fw.msgs[0])
	assert.Equal(t, "webhook-events", fw.msgs[0].Topic)
	assert.Equal(t, "sub_1", got.Key)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, "00-abc", got.Headers["traceparent"])
	assert.NotContains(t, got.Headers, headerMessageID)
}

func TestKafkaSubscribeCommitsAfterHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		queue: []kafka.Message{
			{Topic: "webhook-events", Key: []byte("sub_1"), Value: []byte("one"), Offset: 1},
			{Topic: "webhook-events", Key: []byte("sub_2"), Value: []byte("two"), Offset: 2},
		},
		cancel: cancel,
	}
	broker := NewKafkaBrokerWithClients(&fakeWriter{}, func(topic, group string) KafkaReader {
		assert.Equal(t, "webhook-events", topic)
		assert.Equal(t, "update-subscriptions", group)
		return reader
	}, zap.NewNop())

	var seen []string
	err := broker.Subscribe(ctx, "webhook-events", "update-subscriptions", func(ctx context.Context, msg Message) error {
		seen = append(seen, string(msg.Body))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, seen)
	assert.Len(t, reader.committed, 2)
}

func TestKafkaSubscribeRetriesThenCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		queue:  []kafka.Message{{Topic: "t", Value: []byte("poison"), Offset: 7}},
		cancel: cancel,
	}
	broker := NewKafkaBrokerWithClients(&fakeWriter{}, func(topic, group string) KafkaReader {
		return reader
	}, zap.NewNop())

	calls := 0
	err := broker.Subscribe(ctx, "t", "g", func(ctx context.Context, msg Message) error {
		calls++
		return errors.New("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, defaultMaxAttempts, calls)
	require.Len(t, reader.committed, 1)
	assert.Equal(t, int64(7), reader.committed[0].Offset)
}
