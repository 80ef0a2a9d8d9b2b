package debit

import (
	"github.com/rankhive/creditd/internal/debit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("debit.service",
	fx.Provide(service.New),
)
