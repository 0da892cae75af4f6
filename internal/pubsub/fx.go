package pubsub

import (
	"context"
	"fmt"
	"os"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payhook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pubsub",
	fx.Provide(NewBroker),
	fx.Provide(
		func(b Broker) Publisher { return b },
		func(b Broker) Subscriber { return b },
	),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Redis     *redis.Client `optional:"true"`
}

// NewBroker selects the driver named by PUBSUB_DRIVER.
func NewBroker(p Params) (Broker, error) {
	log := p.Log.Named("pubsub")
	cfg := p.Config.PubSub

	var (
		broker Broker
		err    error
	)
	switch cfg.Driver {
	case config.PubSubDriverKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka driver requires KAFKA_BROKERS")
		}
		broker = NewKafkaBroker(cfg.KafkaBrokers, p.Log)
	case config.PubSubDriverRabbitMQ:
		broker, err = NewRabbitMQBroker(cfg.AMQPURL, p.Log)
		if err != nil {
			return nil, err
		}
	case config.PubSubDriverRedis:
		if p.Redis == nil {
			return nil, fmt.Errorf("redis driver requires REDIS_ADDR")
		}
		broker = NewRedisStreamBroker(p.Redis, consumerName(p.Config.AppName), p.Log)
	default:
		broker = NewMemoryBroker(p.Log)
	}

	log.Info("pubsub driver selected",
		zap.String("driver", cfg.Driver),
		zap.String("topic", cfg.Topic),
	)

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return broker.Close()
		},
	})
	return broker, nil
}

func consumerName(app string) string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "local"
	}
	if strings.TrimSpace(app) == "" {
		app = "payhook"
	}
	return app + "-" + host
}
