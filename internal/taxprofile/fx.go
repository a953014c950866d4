package taxprofile

import (
	"github.com/kassaflow/kassaflow/internal/taxprofile/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("taxprofile",
	fx.Provide(repository.Provide),
)
