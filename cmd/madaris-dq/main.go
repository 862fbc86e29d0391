package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/madaris/dq/internal/config"
	"github.com/madaris/dq/internal/metrics"
	"github.com/madaris/dq/internal/migration"
	"github.com/madaris/dq/internal/server"
	"github.com/madaris/dq/pkg/db"
	"github.com/madaris/dq/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		metrics.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
