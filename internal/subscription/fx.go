package subscription

import (
	"github.com/rankhive/creditd/internal/subscription/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.reader",
	fx.Provide(repository.Provide),
)
