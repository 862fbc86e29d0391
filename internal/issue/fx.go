package issue

import (
	"github.com/madaris/dq/internal/issue/repository"
	"github.com/madaris/dq/internal/issue/service"
	"go.uber.org/fx"
)

var Module = fx.Module("issue.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
