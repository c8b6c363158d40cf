package wallet

import (
	"github.com/smallbiznis/creatorpay/internal/ratelimit"
	walletdomain "github.com/smallbiznis/creatorpay/internal/wallet/domain"
	"github.com/smallbiznis/creatorpay/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(
		func(l *ratelimit.WalletLimiter) walletdomain.Limiter { return l },
		service.NewService,
	),
)
