package gateway

import (
	"context"

	"spread_mirror/internal/broker"
	"spread_mirror/internal/modules/alerts/service"
	"spread_mirror/internal/modules/config"
	gatewaysvc "spread_mirror/internal/modules/gateway/service"
	secrets "spread_mirror/internal/modules/secrets/service"
	"spread_mirror/internal/modules/store/service/pg"
	"spread_mirror/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("gateway",
		fx.Provide(
			func(cfg *config.Config, sp secrets.Provider, bus *service.Bus, log *logger.Logger) (*gatewaysvc.Orchestrator, error) {
				runtime, err := gatewaysvc.NewDockerRuntime()
				if err != nil {
					return nil, err
				}
				blog := log.Named("broker")
				return gatewaysvc.NewOrchestrator(
					cfg.Gateway,
					runtime,
					sp,
					bus,
					log.Named("gateway"),
					func() broker.API { return broker.NewClient(blog) },
				), nil
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			ctx context.Context,
			orch *gatewaysvc.Orchestrator,
			st *pg.Store,
			log *logger.Logger,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					orch.StartHealth(ctx)
					// гейтвеи активных фолловеров поднимаем в фоне:
					// логин у брокера небыстрый, старт приложения его не ждёт
					go func() {
						followers, err := st.Followers(ctx)
						if err != nil {
							log.Error("bootstrap followers: %v", err)
							return
						}
						for _, f := range followers {
							if err := orch.Start(ctx, f); err != nil {
								log.Error("start gateway %s: %v", f.ID, err)
							}
						}
					}()
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					// сначала гасим health-луп, потом инстансы; ошибки
					// отдельных остановок собраны внутри и не мешают остальным
					return orch.Shutdown(stopCtx)
				},
			})
		}),
	)
}
