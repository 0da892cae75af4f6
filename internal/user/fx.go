package user

import (
	"github.com/smallbiznis/payhook/internal/user/repository"
	"github.com/smallbiznis/payhook/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
