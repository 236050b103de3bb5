package signals

import (
	"context"

	"spread_mirror/internal/models"
	"spread_mirror/internal/modules/config"
	"spread_mirror/internal/modules/signals/service"
	"spread_mirror/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("signals",
		fx.Provide(
			func() chan models.Signal {
				return make(chan models.Signal, 64)
			},
			func(rdb *redis.Client, cfg *config.Config, log *logger.Logger) *service.Reader {
				return service.NewReader(rdb, cfg.Redis.SignalStream, log.Named("signals"))
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			ctx context.Context,
			r *service.Reader,
			sigs chan models.Signal,
		) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go r.Run(ctx, sigs)
					return nil
				},
			})
		}),
	)
}
