package ladder

import (
	"context"

	"spread_mirror/internal/models"
	alertsvc "spread_mirror/internal/modules/alerts/service"
	"spread_mirror/internal/modules/config"
	gatewaysvc "spread_mirror/internal/modules/gateway/service"
	"spread_mirror/internal/modules/ladder/service"
	"spread_mirror/internal/modules/store/service/pg"
	"spread_mirror/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("ladder",
		fx.Provide(
			func(
				cfg *config.Config,
				orch *gatewaysvc.Orchestrator,
				bus *alertsvc.Bus,
				st *pg.Store,
				log *logger.Logger,
			) *service.Ladder {
				return service.NewLadder(cfg.Ladder, orch, bus, st, log.Named("ladder"))
			},
		),
		// роутер: каждый входящий сигнал тиражируется по всем включённым
		// фолловерам, исполнение для разных фолловеров — параллельно
		fx.Invoke(func(
			lc fx.Lifecycle,
			ctx context.Context,
			l *service.Ladder,
			st *pg.Store,
			sigs chan models.Signal,
			log *logger.Logger,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						for {
							select {
							case <-ctx.Done():
								return
							case sig := <-sigs:
								followers, err := st.Followers(ctx)
								if err != nil {
									log.Error("followers for signal %s: %v", sig.Ticker, err)
									continue
								}
								for _, f := range followers {
									go func(f models.Follower) {
										l.Execute(ctx, sig, f)
									}(f)
								}
							}
						}
					}()
					return nil
				},
			})
		}),
	)
}
