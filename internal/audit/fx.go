package audit

import (
	"github.com/madaris/dq/internal/audit/repository"
	"github.com/madaris/dq/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
