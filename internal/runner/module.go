package runner

import (
	"go.uber.org/fx"
)

// Module exports the runner module
var Module = fx.Options(
	fx.Provide(NewRunner),
	fx.Provide(NewScheduler),
)
