package grant

import (
	"github.com/rankhive/creditd/internal/grant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("grant.service",
	fx.Provide(service.New),
)
