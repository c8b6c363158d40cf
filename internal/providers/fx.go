package providers

import (
	"github.com/smallbiznis/creatorpay/internal/providers/email"
	"github.com/smallbiznis/creatorpay/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
