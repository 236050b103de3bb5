package postgres

import (
	"context"
	"fmt"

	"spread_mirror/internal/modules/config"
	"spread_mirror/pkg/db"
	"spread_mirror/pkg/logger"

	"go.uber.org/fx"
)

// Module — пул к мастеру + tx manager.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster, log.Named("pg")), nil
			},
		),
	)
}
