package registry

import (
	"github.com/madaris/dq/internal/registry/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(repository.Provide),
)
