package batch

import (
	"github.com/madaris/dq/internal/batch/repository"
	"github.com/madaris/dq/internal/batch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("batch.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
