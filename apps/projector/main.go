package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payhook/internal/cache"
	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/observability"
	"github.com/smallbiznis/payhook/internal/observability/push"
	"github.com/smallbiznis/payhook/internal/pubsub"
	"github.com/smallbiznis/payhook/internal/subscription"
	"github.com/smallbiznis/payhook/internal/webhook"
	"github.com/smallbiznis/payhook/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		// Only the redis streams driver uses the client here.
		cache.Module,
		pubsub.Module,
		push.Module,

		webhook.StoreModule,
		subscription.Module,

		// No server module; metrics leave through the pusher.
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		panic(err)
	}
	return node
}
