package recurring

import "go.uber.org/fx"

// Module provides the scheduling side. Worker processes also invoke RunServer.
var Module = fx.Module("recurring",
	fx.Provide(
		NewClient,
		NewInspector,
		NewScheduler,
		NewHandler,
	),
)
