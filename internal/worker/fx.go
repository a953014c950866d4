package worker

import (
	"context"

	"go.uber.org/fx"

	"github.com/kassaflow/kassaflow/internal/config"
)

var Module = fx.Module("worker",
	fx.Provide(New),
)

// Run starts the polling loop for the standalone worker binary.
func Run(lc fx.Lifecycle, w *Worker) {
	start(lc, w)
}

// RunIfEmbedded starts the polling loop inside the API process when the
// embedded-worker flag is set.
func RunIfEmbedded(lc fx.Lifecycle, cfg config.Config, w *Worker) {
	if !cfg.RunEmbeddedWorker {
		return
	}
	start(lc, w)
}

func start(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go w.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
