package injection

import (
	"github.com/madaris/dq/internal/injection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("injection.service",
	fx.Provide(service.New),
)
