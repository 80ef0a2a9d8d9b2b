package pack

import (
	"github.com/rankhive/creditd/internal/pack/repository"
	"github.com/rankhive/creditd/internal/pack/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pack.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
