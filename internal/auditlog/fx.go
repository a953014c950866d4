package auditlog

import (
	"go.uber.org/fx"

	"github.com/kassaflow/kassaflow/internal/auditlog/repository"
	"github.com/kassaflow/kassaflow/internal/auditlog/service"
)

var Module = fx.Module("auditlog",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
