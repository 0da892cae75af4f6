package webhook

import (
	"github.com/smallbiznis/payhook/internal/webhook/adapters"
	"github.com/smallbiznis/payhook/internal/webhook/adapters/stripe"
	"github.com/smallbiznis/payhook/internal/webhook/publisher"
	"github.com/smallbiznis/payhook/internal/webhook/repository"
	"github.com/smallbiznis/payhook/internal/webhook/service"
	"go.uber.org/fx"
)

// StoreModule exposes the event store alone for processes that do not ingest.
var StoreModule = fx.Module("webhook.store",
	fx.Provide(repository.Provide),
)

var Module = fx.Module("webhook.service",
	StoreModule,
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(publisher.New),
	fx.Provide(func(p *publisher.EventPublisher) service.EventPublisher { return p }),
	fx.Provide(service.New),
)
