package pubsub

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const amqpPrefetch = 1

// amqpChannel is the subset of *amqp.Channel the broker uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// RabbitMQBroker maps a topic to a durable fanout exchange and a
// subscription to a durable queue bound to it.
type RabbitMQBroker struct {
	conn        *amqp.Connection
	openChannel func() (amqpChannel, error)

	mu       sync.Mutex
	pub      amqpChannel
	declared map[string]bool
	log      *zap.Logger
}

func NewRabbitMQBroker(url string, log *zap.Logger) (*RabbitMQBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	broker := NewRabbitMQBrokerWithChannels(func() (amqpChannel, error) {
		return conn.Channel()
	}, log)
	broker.conn = conn
	return broker, nil
}

// NewRabbitMQBrokerWithChannels allows injecting test channels.
func NewRabbitMQBrokerWithChannels(openChannel func() (amqpChannel, error), log *zap.Logger) *RabbitMQBroker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RabbitMQBroker{
		openChannel: openChannel,
		declared:    map[string]bool{},
		log:         log.Named("pubsub.rabbitmq"),
	}
}

func (b *RabbitMQBroker) Publish(ctx context.Context, msg Message) error {
	// amqp channels are not safe for concurrent publishing.
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pub == nil {
		ch, err := b.openChannel()
		if err != nil {
			return fmt.Errorf("open publish channel: %w", err)
		}
		b.pub = ch
	}
	if !b.declared[msg.Topic] {
		if err := declareExchange(b.pub, msg.Topic); err != nil {
			b.resetPublisher()
			return err
		}
		b.declared[msg.Topic] = true
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	err := b.pub.PublishWithContext(ctx, msg.Topic, msg.Key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.PublishedAt,
		Headers:      headers,
		Body:         msg.Body,
	})
	if err != nil {
		b.resetPublisher()
		return err
	}
	return nil
}

func (b *RabbitMQBroker) resetPublisher() {
	if b.pub != nil {
		_ = b.pub.Close()
	}
	b.pub = nil
	b.declared = map[string]bool{}
}

// Subscribe acks after the handler succeeds. A failed first delivery is
// requeued once; a failed redelivery is rejected so the broker can
// dead-letter it instead of looping.
func (b *RabbitMQBroker) Subscribe(ctx context.Context, topic, subscription string, handler Handler) error {
	ch, err := b.openChannel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, topic); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(subscription, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", subscription, err)
	}
	if err := ch.QueueBind(subscription, "", topic, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", subscription, err)
	}
	if err := ch.Qos(amqpPrefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(subscription, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", subscription, err)
	}

	log := b.log.With(zap.String("topic", topic), zap.String("subscription", subscription))
	log.Info("rabbitmq consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq deliveries closed for %s", subscription)
			}
			b.deliver(ctx, log, d, handler)
		}
	}
}

func (b *RabbitMQBroker) deliver(ctx context.Context, log *zap.Logger, d amqp.Delivery, handler Handler) {
	msg := fromDelivery(d)
	if err := handler(ctx, msg); err != nil {
		requeue := !d.Redelivered
		log.Warn("handler failed",
			zap.String("message_id", msg.ID),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			log.Warn("nack failed", zap.String("message_id", msg.ID), zap.Error(nackErr))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Warn("ack failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (b *RabbitMQBroker) Close() error {
	b.mu.Lock()
	b.resetPublisher()
	b.mu.Unlock()
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func declareExchange(ch amqpChannel, topic string) error {
	if err := ch.ExchangeDeclare(topic, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topic, err)
	}
	return nil
}

func fromDelivery(d amqp.Delivery) Message {
	msg := Message{
		ID:          d.MessageId,
		Topic:       d.Exchange,
		Key:         d.RoutingKey,
		Body:        d.Body,
		Headers:     make(map[string]string, len(d.Headers)),
		PublishedAt: d.Timestamp,
	}
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			msg.Headers[k] = s
		}
	}
	return msg
}
