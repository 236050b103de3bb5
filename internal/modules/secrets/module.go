package secrets

import (
	"spread_mirror/internal/modules/config"
	"spread_mirror/internal/modules/secrets/service"
	"spread_mirror/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("secrets",
		fx.Provide(
			func(cfg *config.Config, log *logger.Logger) service.Provider {
				return service.NewVaultFile(cfg.Vault, log.Named("secrets"))
			},
		),
	)
}
