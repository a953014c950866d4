package event

import (
	"github.com/kassaflow/kassaflow/internal/event/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("event",
	fx.Provide(repository.Provide),
)
