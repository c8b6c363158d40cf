package balance

import (
	"github.com/smallbiznis/creatorpay/internal/balance/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("balance",
	fx.Provide(repository.Provide),
)
