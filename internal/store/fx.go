package store

import (
	"github.com/kassaflow/kassaflow/internal/store/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("store",
	fx.Provide(repository.Provide),
)
