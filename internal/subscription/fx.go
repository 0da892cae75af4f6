package subscription

import (
	"context"
	"errors"

	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/pubsub"
	"github.com/smallbiznis/payhook/internal/subscription/projector"
	"github.com/smallbiznis/payhook/internal/subscription/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("subscription.projector",
	fx.Provide(repository.Provide),
	fx.Provide(projector.New),
	fx.Invoke(runConsumer),
)

func runConsumer(lc fx.Lifecycle, cfg config.Config, subscriber pubsub.Subscriber, p *projector.Projector, log *zap.Logger) {
	log = log.Named("subscription.consumer")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				log.Info("projector consuming",
					zap.String("topic", cfg.PubSub.Topic),
					zap.String("subscription", cfg.PubSub.Subscription),
				)
				err := subscriber.Subscribe(ctx, cfg.PubSub.Topic, cfg.PubSub.Subscription, p.HandleMessage)
				if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pubsub.ErrClosed) {
					log.Error("projector subscription stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
