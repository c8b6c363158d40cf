package events

import "go.uber.org/fx"

// Module wires the bus. The route table ([]Route) is supplied by the settlement module.
var Module = fx.Module("events",
	fx.Provide(
		NewSignal,
		NewOutbox,
		NewDispatcher,
		NewRelay,
	),
)
