package audit

import (
	"github.com/smallbiznis/creatorpay/internal/audit/repository"
	"github.com/smallbiznis/creatorpay/internal/audit/service"
	"go.uber.org/fx"
)

// Module exposes the audit trail recorder to the HTTP layer. The audit_logs
// repository is private to the module; rows are written only through the
// service, which stamps actor and request id from the context.
var Module = fx.Module("audit",
	fx.Provide(repository.Provide, fx.Private),
	fx.Provide(service.NewService),
)
