package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/audit"
	"github.com/smallbiznis/creatorpay/internal/balance"
	"github.com/smallbiznis/creatorpay/internal/catalog"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/coupon"
	"github.com/smallbiznis/creatorpay/internal/earning"
	"github.com/smallbiznis/creatorpay/internal/events"
	"github.com/smallbiznis/creatorpay/internal/gatewayconfig"
	"github.com/smallbiznis/creatorpay/internal/migration"
	"github.com/smallbiznis/creatorpay/internal/notification"
	"github.com/smallbiznis/creatorpay/internal/observability"
	"github.com/smallbiznis/creatorpay/internal/order"
	"github.com/smallbiznis/creatorpay/internal/payment"
	"github.com/smallbiznis/creatorpay/internal/providers"
	"github.com/smallbiznis/creatorpay/internal/ratelimit"
	"github.com/smallbiznis/creatorpay/internal/recurring"
	"github.com/smallbiznis/creatorpay/internal/scheduler"
	"github.com/smallbiznis/creatorpay/internal/server"
	"github.com/smallbiznis/creatorpay/internal/settings"
	"github.com/smallbiznis/creatorpay/internal/settlement"
	"github.com/smallbiznis/creatorpay/internal/subscription"
	"github.com/smallbiznis/creatorpay/internal/wallet"
	"github.com/smallbiznis/creatorpay/pkg/db"
	"go.uber.org/fx"
)

// Monolith: HTTP API and webhooks, scheduler and the recurring charge worker.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		providers.Module,

		// Functional Domains
		events.Module,
		settings.Module,
		catalog.Module,
		balance.Module,
		coupon.Module,
		gatewayconfig.Module,
		order.Module,
		payment.Module,
		earning.Module,
		subscription.Module,
		wallet.Module,
		recurring.Module,
		notification.Module,
		settlement.Module,
		audit.Module,

		scheduler.Module,
		server.Module,
		fx.Invoke(recurring.RunServer),
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
