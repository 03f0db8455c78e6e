// Package redis wires the shared Redis client used by the update buffer,
// the fanout bus and the lease locks.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wangfenghuan/draw-backend/config"
	"go.uber.org/fx"
)

func NewClient(cfg *config.Config) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

var Module = fx.Module(
	"redis",

	fx.Provide(NewClient),

	fx.Invoke(func(lc fx.Lifecycle, client redis.UniversalClient) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis: ping: %w", err)
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
	}),
)
