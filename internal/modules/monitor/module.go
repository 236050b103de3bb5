package monitor

import (
	"context"

	alertsvc "spread_mirror/internal/modules/alerts/service"
	"spread_mirror/internal/modules/config"
	gatewaysvc "spread_mirror/internal/modules/gateway/service"
	"spread_mirror/internal/modules/monitor/service"
	"spread_mirror/internal/modules/store/service/pg"
	"spread_mirror/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("monitor",
		fx.Provide(
			func(
				cfg *config.Config,
				orch *gatewaysvc.Orchestrator,
				bus *alertsvc.Bus,
				st *pg.Store,
				log *logger.Logger,
			) *service.Monitor {
				return service.NewMonitor(cfg.Monitor, orch, bus, st, log.Named("monitor"))
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, ctx context.Context, m *service.Monitor) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					m.StartLoop(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					m.Stop()
					return nil
				},
			})
		}),
	)
}
