package receipt

import (
	"go.uber.org/fx"

	"github.com/kassaflow/kassaflow/internal/receipt/repository"
)

var Module = fx.Module("receipt",
	fx.Provide(
		repository.NewRepository,
	),
)
