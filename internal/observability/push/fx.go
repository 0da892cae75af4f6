package push

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/payhook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(registerWorker),
)

type workerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Pusher    Pusher
	Registry  *prometheus.Registry
	Log       *zap.Logger
}

func registerWorker(p workerParams) {
	if p.Pusher == nil || p.Registry == nil {
		return
	}
	log := p.Log.Named("metrics.push")
	interval := p.Config.Push.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics push worker", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-ticker.C:
						pushOnce(ctx, p.Pusher, p.Registry, log)
					case <-ctx.Done():
						return
					}
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
			// Flush the final totals so short-lived workers are not lost.
			pushOnce(stopCtx, p.Pusher, p.Registry, log)
			return nil
		},
	})
}

func pushOnce(ctx context.Context, pusher Pusher, registry prometheus.Gatherer, log *zap.Logger) {
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := pusher.Push(pushCtx, registry); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}
