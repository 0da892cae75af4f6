package pubsub

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaWriter is the subset of kafka.Writer the publisher needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReader is the subset of kafka.Reader the subscriber needs.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaBroker struct {
	writer    KafkaWriter
	newReader func(topic, group string) KafkaReader
	log       *zap.Logger
}

func NewKafkaBroker(brokers []string, log *zap.Logger) *KafkaBroker {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaBrokerWithClients(writer, func(topic, group string) KafkaReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  group,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  time.Second,
		})
	}, log)
}

// NewKafkaBrokerWithClients allows injecting test clients.
func NewKafkaBrokerWithClients(writer KafkaWriter, newReader func(topic, group string) KafkaReader, log *zap.Logger) *KafkaBroker {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaBroker{
		writer:    writer,
		newReader: newReader,
		log:       log.Named("pubsub.kafka"),
	}
}

func (b *KafkaBroker) Publish(ctx context.Context, msg Message) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+1)
	headers = append(headers, kafka.Header{Key: headerMessageID, Value: []byte(msg.ID)})
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Body,
		Headers: headers,
		Time:    msg.PublishedAt,
	})
}

// Subscribe commits an offset only after the handler succeeds or the retry
// budget is spent, so a crash mid-handler redelivers the message.
func (b *KafkaBroker) Subscribe(ctx context.Context, topic, group string, handler Handler) error {
	reader := b.newReader(topic, group)
	defer reader.Close()

	log := b.log.With(zap.String("topic", topic), zap.String("group", group))
	log.Info("kafka consumer started")

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Warn("fetch message failed", zap.Error(err))
			if !retryDelay(ctx, 5) {
				return nil
			}
			continue
		}

		msg := fromKafkaMessage(m)
		for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
			err = handler(ctx, msg)
			if err == nil {
				break
			}
			log.Warn("handler failed",
				zap.String("message_id", msg.ID),
				zap.Int64("offset", m.Offset),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt == defaultMaxAttempts || !retryDelay(ctx, attempt) {
				break
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Error("message skipped after retries", zap.String("message_id", msg.ID), zap.Int64("offset", m.Offset))
		}

		if err := reader.CommitMessages(ctx, m); err != nil {
			log.Warn("commit offset failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}

func fromKafkaMessage(m kafka.Message) Message {
	msg := Message{
		Topic:       m.Topic,
		Key:         string(m.Key),
		Body:        m.Value,
		Headers:     make(map[string]string, len(m.Headers)),
		PublishedAt: m.Time,
	}
	for _, h := range m.Headers {
		if h.Key == headerMessageID {
			msg.ID = string(h.Value)
			continue
		}
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
