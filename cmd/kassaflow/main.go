package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/kassaflow/kassaflow/internal/auditlog"
	"github.com/kassaflow/kassaflow/internal/clock"
	"github.com/kassaflow/kassaflow/internal/config"
	"github.com/kassaflow/kassaflow/internal/event"
	"github.com/kassaflow/kassaflow/internal/fiscal"
	"github.com/kassaflow/kassaflow/internal/ingest"
	"github.com/kassaflow/kassaflow/internal/logger"
	"github.com/kassaflow/kassaflow/internal/migration"
	"github.com/kassaflow/kassaflow/internal/notify"
	"github.com/kassaflow/kassaflow/internal/receipt"
	"github.com/kassaflow/kassaflow/internal/server"
	"github.com/kassaflow/kassaflow/internal/store"
	"github.com/kassaflow/kassaflow/internal/task"
	"github.com/kassaflow/kassaflow/internal/taxprofile"
	"github.com/kassaflow/kassaflow/internal/worker"
	"github.com/kassaflow/kassaflow/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		fx.Provide(config.NewWorkerTuningHolder),
		db.Module,
		clock.Module,
		migration.Module,

		store.Module,
		taxprofile.Module,
		event.Module,
		task.Module,
		receipt.Module,
		auditlog.Module,
		fiscal.Module,
		notify.Module,
		ingest.Module,
		worker.Module,

		server.Module,
		fx.Invoke(worker.RunIfEmbedded),
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
