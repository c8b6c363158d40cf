package payment

import (
	"github.com/smallbiznis/creatorpay/internal/payment/adapters"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters/ccbill"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters/emerchantpay"
	"github.com/smallbiznis/creatorpay/internal/payment/adapters/verotel"
	"github.com/smallbiznis/creatorpay/internal/payment/repository"
	paymentservice "github.com/smallbiznis/creatorpay/internal/payment/service"
	"github.com/smallbiznis/creatorpay/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			ccbill.NewFactory(),
			verotel.NewFactory(),
			emerchantpay.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
