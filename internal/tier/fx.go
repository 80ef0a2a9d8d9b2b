package tier

import (
	"github.com/rankhive/creditd/internal/tier/repository"
	"github.com/rankhive/creditd/internal/tier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
