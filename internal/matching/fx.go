package matching

import (
	"github.com/madaris/dq/internal/matching/repository"
	"github.com/madaris/dq/internal/matching/service"
	"go.uber.org/fx"
)

var Module = fx.Module("matching.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
