package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payhook/internal/cache"
	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/migration"
	"github.com/smallbiznis/payhook/internal/observability"
	"github.com/smallbiznis/payhook/internal/observability/push"
	"github.com/smallbiznis/payhook/internal/pubsub"
	"github.com/smallbiznis/payhook/internal/server"
	"github.com/smallbiznis/payhook/internal/subscription"
	"github.com/smallbiznis/payhook/internal/user"
	"github.com/smallbiznis/payhook/internal/webhook"
	"github.com/smallbiznis/payhook/pkg/db"
	"go.uber.org/fx"
)

// payhook runs ingestion and the subscription projector in one process,
// which is the only layout where the in-memory broker delivers anything.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		pubsub.Module,
		push.Module,

		// Functional Domains
		user.Module,
		webhook.Module,
		subscription.Module,

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
