package gatewayconfig

import (
	"github.com/smallbiznis/creatorpay/internal/gatewayconfig/repository"
	"github.com/smallbiznis/creatorpay/internal/gatewayconfig/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gatewayconfig.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
