package fiscal

import (
	"go.uber.org/fx"

	"github.com/kassaflow/kassaflow/internal/fiscal/adapters"
	"github.com/kassaflow/kassaflow/internal/fiscal/adapters/npd"
	"github.com/kassaflow/kassaflow/internal/fiscal/adapters/proxy"
)

var Module = fx.Module("fiscal",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			npd.NewFactory(),
			proxy.NewFactory(),
		)
	}),
)
