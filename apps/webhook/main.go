package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payhook/internal/cache"
	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/migration"
	"github.com/smallbiznis/payhook/internal/observability"
	"github.com/smallbiznis/payhook/internal/pubsub"
	"github.com/smallbiznis/payhook/internal/server"
	"github.com/smallbiznis/payhook/internal/user"
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
		migration.Module,
		clock.Module,
		cache.Module,
		pubsub.Module,

		user.Module,
		webhook.Module,

		server.Module,
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
