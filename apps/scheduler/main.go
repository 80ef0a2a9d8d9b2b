package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/rankhive/creditd/internal/balance"
	"github.com/rankhive/creditd/internal/clock"
	"github.com/rankhive/creditd/internal/config"
	"github.com/rankhive/creditd/internal/grant"
	"github.com/rankhive/creditd/internal/ledger"
	"github.com/rankhive/creditd/internal/logger"
	"github.com/rankhive/creditd/internal/migration"
	"github.com/rankhive/creditd/internal/observability"
	"github.com/rankhive/creditd/internal/scheduler"
	"github.com/rankhive/creditd/internal/subscription"
	"github.com/rankhive/creditd/internal/tier"
	"github.com/rankhive/creditd/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		ledger.Module,
		balance.Module,
		tier.Module,
		subscription.Module,
		grant.Module,

		scheduler.Module,
	)
	app.Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
