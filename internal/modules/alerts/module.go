package alerts

import (
	"context"

	"spread_mirror/internal/modules/config"
	"spread_mirror/internal/modules/alerts/service"
	"spread_mirror/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("alerts",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
				rdb := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				// пинг на старте: редис нам нужен живой, но дальше его падения
				// не фатальны — Publish глотает ошибки
				if err := rdb.Ping(ctx).Err(); err != nil {
					return nil, err
				}
				return rdb, nil
			},
			func(rdb *redis.Client, cfg *config.Config, log *logger.Logger) *service.Bus {
				return service.NewBus(rdb, cfg.Redis.Stream, "spread_mirror", log.Named("alerts"))
			},
		),
	)
}
