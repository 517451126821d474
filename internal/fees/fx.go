package fees

import "go.uber.org/fx"

var Module = fx.Module("fees",
	fx.Provide(NewCalculator),
)
