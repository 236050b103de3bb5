package store

import (
	"spread_mirror/internal/modules/store/service/pg"
	"spread_mirror/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("store",
		fx.Provide(
			func(txm *db.PgTxManager) *pg.Store {
				return pg.NewStore(txm)
			},
		),
	)
}
