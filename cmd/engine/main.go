package main

import (
	"context"
	"log"

	"spread_mirror/internal/modules/alerts"
	"spread_mirror/internal/modules/config"
	"spread_mirror/internal/modules/gateway"
	"spread_mirror/internal/modules/ladder"
	"spread_mirror/internal/modules/monitor"
	"spread_mirror/internal/modules/postgres"
	"spread_mirror/internal/modules/secrets"
	"spread_mirror/internal/modules/signals"
	"spread_mirror/internal/modules/store"
	"spread_mirror/pkg/logger"
	"spread_mirror/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
			func() (*logger.Logger, error) {
				return logger.New("spread_mirror")
			},
		),
		// фоновые горутины модулей живут на этом контексте; гасим его раньше
		// OnStop-хуков, чтобы циклы вышли до закрытия соединений
		fx.Invoke(func(lc fx.Lifecycle, cancel context.CancelFunc, l *logger.Logger) {
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					cancel()
					l.Sync()
					return nil
				},
			})
		}),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, l *logger.Logger) error {
			if !cfg.Tracing.Enabled {
				return nil
			}
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				ServiceName: "spread_mirror",
				Host:        cfg.Tracing.Host,
				Port:        cfg.Tracing.Port,
			}, l)
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
		config.Module(),
		postgres.Module(),
		store.Module(),
		alerts.Module(),
		secrets.Module(),
		gateway.Module(),
		signals.Module(),
		ladder.Module(),
		monitor.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
